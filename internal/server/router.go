package server

import (
	"context"
	"log"
	"strings"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/types"
)

// Router persists inbound messages and fans them out to the parties of the
// conversation. Nothing is delivered unless the store accepted the message.
type Router struct {
	db          database.MessageStore
	registry    *Registry
	broadcaster *Broadcaster
	stats       stats.StatsProvider
	log         *log.Logger
	adminId     int
}

// Route handles one inbound event from origin. On success it returns the
// event for origin itself; every other party of the conversation has already
// been handed the same event.
func (rt *Router) Route(ctx context.Context, origin *Client, ev InboundEvent) (*ServerMessage, error) {
	var (
		conversationId int
		sender         types.Role
		content        string
	)

	switch ev := ev.(type) {
	case CustomerMessage:
		if origin.role != types.RoleCustomer {
			return nil, &types.ValidationError{Reason: "only customers may send customer messages"}
		}
		conversationId, sender, content = ev.CustomerId, types.RoleCustomer, ev.Content
	case AdminMessage:
		if origin.role != types.RoleAdmin {
			return nil, &types.ValidationError{Reason: "only the admin may address a customer"}
		}
		if ev.TargetCustomerId <= 0 {
			return nil, &types.ValidationError{Field: "user_id", Reason: "is required"}
		}
		conversationId, sender, content = ev.TargetCustomerId, types.RoleAdmin, ev.Content
	default:
		return nil, &types.ValidationError{Reason: "unsupported event"}
	}

	if strings.TrimSpace(content) == "" {
		return nil, &types.ValidationError{Field: "content", Reason: "must not be blank"}
	}

	msg, err := rt.db.AppendMessage(ctx, conversationId, sender, content)
	if err != nil {
		if types.IsValidationError(err) {
			return nil, err
		}
		rt.stats.Incr(stats.NumPersistenceFailures)
		rt.log.Printf("append message to conversation %d: %v", conversationId, err)
		return nil, &types.PersistenceError{Op: "append message", Err: err}
	}
	rt.stats.Incr(stats.NumMessagesPersisted)

	event := NewMessageEvent(msg, rt.adminId)
	rt.broadcaster.Deliver(rt.recipients(origin, conversationId), event)

	return event, nil
}

// recipients lists every connection entitled to conversationId except origin.
func (rt *Router) recipients(origin *Client, conversationId int) []*Client {
	var out []*Client
	for _, c := range rt.registry.CustomerConnections(conversationId) {
		if c != origin {
			out = append(out, c)
		}
	}
	for _, c := range rt.registry.AdminConnections() {
		if c != origin {
			out = append(out, c)
		}
	}

	return out
}
