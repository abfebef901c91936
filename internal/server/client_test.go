package server

import (
	"errors"
	"testing"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("customer", func(t *testing.T) {
		c := NewClient(types.Identity{UserId: 7, Role: types.RoleCustomer}, nil, nil, testutil.TestLogger(t))
		assert.NotEmpty(t, c.id, "expected a connection id")
		assert.Equal(t, types.RoleCustomer, c.role)
		assert.Equal(t, 7, c.customerId)
		assert.Equal(t, 256, cap(c.send))
	})

	t.Run("admin has no customer id", func(t *testing.T) {
		c := NewClient(types.Identity{UserId: 1, Role: types.RoleAdmin}, nil, nil, testutil.TestLogger(t))
		assert.Equal(t, types.RoleAdmin, c.role)
		assert.Zero(t, c.customerId)
	})

	t.Run("id generation failure", func(t *testing.T) {
		orig := newConnectionId
		t.Cleanup(func() { newConnectionId = orig })
		newConnectionId = func() (string, error) { return "", errors.New("entropy") }

		c := NewClient(types.Identity{UserId: 7}, nil, nil, testutil.TestLogger(t))
		assert.Equal(t, "unknown", c.id)
	})
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			stop: make(chan struct{}),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1)
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			stop: make(chan struct{}),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})

	t.Run("stopped client", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			stop: make(chan struct{}),
			log:  testutil.TestLogger(t),
		}

		c.stopClient()
		assert.False(t, c.queueMessage(&ServerMessage{}))
		assert.Empty(t, c.send)
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopping twice to be safe")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_alreadyReplayed(t *testing.T) {
	c := &Client{replayConversation: 7, replayedThrough: 10}

	assert.True(t, c.alreadyReplayed(NewMessageEvent(storedMessage(10, 7, types.RoleCustomer, "x"), 0)))
	assert.True(t, c.alreadyReplayed(NewMessageEvent(storedMessage(3, 7, types.RoleAdmin, "x"), 0)))
	assert.False(t, c.alreadyReplayed(NewMessageEvent(storedMessage(11, 7, types.RoleCustomer, "x"), 0)))
	assert.False(t, c.alreadyReplayed(NewMessageEvent(storedMessage(5, 8, types.RoleCustomer, "x"), 0)), "expected other conversations to pass")
	assert.False(t, c.alreadyReplayed(SystemNotice("hi")))

	none := &Client{}
	assert.False(t, none.alreadyReplayed(NewMessageEvent(storedMessage(1, 7, types.RoleCustomer, "x"), 0)))
}

func Test_handleFrame(t *testing.T) {
	t.Run("echoes persisted message to origin", func(t *testing.T) {
		db := &database.MockSupportRepository{}
		defer db.AssertExpectations(t)
		relay := newTestRelay(t, db)
		c := newTestClient(t, relay, types.RoleCustomer, 7)
		relay.registry.Register(c)

		db.On("AppendMessage", mock.Anything, 7, types.RoleCustomer, "hello").
			Return(storedMessage(1, 7, types.RoleCustomer, "hello"), nil).Once()

		c.handleFrame([]byte(`{"content":"hello"}`))

		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, EventNewMessage, got[0].Type)
		assert.Equal(t, "hello", got[0].Message.Content)
	})

	t.Run("reports malformed frame", func(t *testing.T) {
		relay := newTestRelay(t, &database.MockSupportRepository{})
		c := newTestClient(t, relay, types.RoleCustomer, 7)

		c.handleFrame([]byte(`not json`))

		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, EventError, got[0].Type)
		assert.Equal(t, 400, got[0].Error.ResponseCode)
	})

	t.Run("reports missing target", func(t *testing.T) {
		db := &database.MockSupportRepository{}
		relay := newTestRelay(t, db)
		c := newTestClient(t, relay, types.RoleAdmin, 0)

		c.handleFrame([]byte(`{"type":"admin_message","content":"hi"}`))

		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, 400, got[0].Error.ResponseCode)
		assert.Contains(t, got[0].Error.Error, "user_id")
		db.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("negative acknowledgment on store failure", func(t *testing.T) {
		db := &database.MockSupportRepository{}
		relay := newTestRelay(t, db)
		c := newTestClient(t, relay, types.RoleCustomer, 7)
		relay.registry.Register(c)

		db.On("AppendMessage", mock.Anything, 7, types.RoleCustomer, "hello").
			Return(database.Message{}, errors.New("db down")).Once()

		c.handleFrame([]byte(`{"content":"hello"}`))

		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, ErrNotPersisted(), got[0])
	})

	t.Run("admin reaches every tab of the target customer once", func(t *testing.T) {
		db := &database.MockSupportRepository{}
		defer db.AssertExpectations(t)
		relay := newTestRelay(t, db)

		admin := newTestClient(t, relay, types.RoleAdmin, 0)
		firstTab := newTestClient(t, relay, types.RoleCustomer, 7)
		secondTab := newTestClient(t, relay, types.RoleCustomer, 7)
		bystander := newTestClient(t, relay, types.RoleCustomer, 8)
		for _, c := range []*Client{admin, firstTab, secondTab, bystander} {
			relay.registry.Register(c)
		}

		db.On("AppendMessage", mock.Anything, 7, types.RoleAdmin, "how can I help?").
			Return(storedMessage(5, 7, types.RoleAdmin, "how can I help?"), nil).Once()

		admin.handleFrame([]byte(`{"type":"admin_message","user_id":7,"content":"how can I help?"}`))

		for name, c := range map[string]*Client{"admin": admin, "first tab": firstTab, "second tab": secondTab} {
			got := drain(c)
			require.Len(t, got, 1, "expected exactly one event for %s", name)
			assert.Equal(t, EventNewMessage, got[0].Type, name)
			assert.Equal(t, int64(5), got[0].Message.Id, name)
			assert.True(t, got[0].Message.IsFromAdmin, name)
		}
		assert.Empty(t, drain(bystander))
	})

	t.Run("customer message persists without an admin online", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Times(5)
		su.On("Incr", stats.NumMessagesPersisted).Once()
		defer su.AssertExpectations(t)

		db := &database.MockSupportRepository{}
		defer db.AssertExpectations(t)
		relay := NewRelay(testutil.TestLogger(t), db, su, testAdminId)
		c := newTestClient(t, relay, types.RoleCustomer, 7)
		relay.registry.Register(c)

		db.On("AppendMessage", mock.Anything, 7, types.RoleCustomer, "anyone there?").
			Return(storedMessage(1, 7, types.RoleCustomer, "anyone there?"), nil).Once()

		c.handleFrame([]byte(`{"content":"anyone there?"}`))

		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, EventNewMessage, got[0].Type)
		assert.Equal(t, "anyone there?", got[0].Message.Content)
		su.AssertNotCalled(t, "Incr", stats.NumDeliveryFailures)
		assert.Equal(t, 1, relay.ActiveConnections())
	})

	t.Run("evicts origin that cannot take its reply", func(t *testing.T) {
		db := &database.MockSupportRepository{}
		defer db.AssertExpectations(t)
		relay := newTestRelay(t, db)
		c := newTestClient(t, relay, types.RoleCustomer, 7)
		c.send = make(chan *ServerMessage, 1)
		c.send <- SystemNotice("backlog")
		relay.registry.Register(c)

		db.On("AppendMessage", mock.Anything, 7, types.RoleCustomer, "hello").
			Return(storedMessage(1, 7, types.RoleCustomer, "hello"), nil).Once()

		c.handleFrame([]byte(`{"content":"hello"}`))

		select {
		case <-c.stop:
		default:
			t.Error("expected origin to be stopped")
		}
		assert.Equal(t, 0, relay.ActiveConnections(), "expected origin to be deregistered")
	})
}
