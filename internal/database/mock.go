package database

import (
	"context"

	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockSupportRepository struct {
	mock.Mock
}

func (m *MockSupportRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSupportRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockSupportRepository) ListUsers() ([]Account, error) {
	args := m.Called()
	if accounts, ok := args.Get(0).([]Account); ok {
		return accounts, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockSupportRepository) AppendMessage(ctx context.Context, conversationId int, sender types.Role, content string) (Message, error) {
	args := m.Called(ctx, conversationId, sender, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSupportRepository) GetMessages(ctx context.Context, conversationId int) ([]Message, error) {
	args := m.Called(ctx, conversationId)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockSupportRepository) CountMessages(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
