package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
)

const testAdminId = 0

func newTestRelay(t *testing.T, db database.MessageStore) *Relay {
	return NewRelay(testutil.TestLogger(t), db, stats.NewPermissiveMock(), testAdminId)
}

// newTestClient returns a client without a socket; tests read its send
// buffer directly.
func newTestClient(t *testing.T, r *Relay, role types.Role, customerId int) *Client {
	return &Client{
		id:         t.Name(),
		relay:      r,
		log:        testutil.TestLogger(t),
		role:       role,
		customerId: customerId,
		send:       make(chan *ServerMessage, 16),
		stop:       make(chan struct{}),
	}
}

func storedMessage(id int64, conversationId int, sender types.Role, content string) database.Message {
	return database.Message{
		Id:             id,
		ConversationId: conversationId,
		SenderRole:     sender,
		Content:        content,
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(id) * time.Second),
	}
}

func drain(c *Client) []*ServerMessage {
	var out []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}
