package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
)

const adminMessageType = "admin_message"

// ClientMessage is an inbound frame. Customers send only content; the admin
// console also names the target conversation.
type ClientMessage struct {
	Type    string `json:"type,omitempty"`
	UserId  int    `json:"user_id,omitempty"`
	Content string `json:"content"`
}

// InboundEvent is a parsed, typed inbound frame.
type InboundEvent interface {
	inbound()
}

type CustomerMessage struct {
	CustomerId int
	Content    string
}

type AdminMessage struct {
	TargetCustomerId int
	Content          string
}

func (CustomerMessage) inbound() {}
func (AdminMessage) inbound()    {}

// parseClientMessage decodes raw according to the role of the sending
// connection. Field-level validation is left to the Router.
func parseClientMessage(origin *Client, raw []byte) (InboundEvent, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &types.ValidationError{Reason: "malformed frame"}
	}

	switch origin.role {
	case types.RoleAdmin:
		if msg.Type != adminMessageType {
			return nil, &types.ValidationError{Field: "type", Reason: "must be " + adminMessageType}
		}
		return AdminMessage{TargetCustomerId: msg.UserId, Content: msg.Content}, nil
	default:
		return CustomerMessage{CustomerId: origin.customerId, Content: msg.Content}, nil
	}
}

type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventSystem     EventType = "system"
	EventError      EventType = "error"
)

// ServerMessage is an outbound event. Exactly one of Message, Error or
// Notice is meaningful, selected by Type.
type ServerMessage struct {
	Type    EventType
	Message *NewMessage
	Error   *Response
	Notice  string
}

type NewMessage struct {
	Id          int64     `json:"id"`
	UserId      int       `json:"user_id"`
	Content     string    `json:"content"`
	SenderId    int       `json:"sender_id"`
	IsFromAdmin bool      `json:"is_from_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

type Response struct {
	ResponseCode int    `json:"code"`
	Error        string `json:"error"`
}

func (m *ServerMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case EventNewMessage:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*NewMessage
		}{m.Type, m.Message})
	case EventError:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*Response
		}{m.Type, m.Error})
	default:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{m.Type, m.Notice})
	}
}

// NewMessageEvent converts a persisted message into the outbound event every
// party of its conversation receives.
func NewMessageEvent(msg database.Message, adminId int) *ServerMessage {
	senderId := msg.ConversationId
	if msg.IsFromAdmin() {
		senderId = adminId
	}

	return &ServerMessage{
		Type: EventNewMessage,
		Message: &NewMessage{
			Id:          msg.Id,
			UserId:      msg.ConversationId,
			Content:     msg.Content,
			SenderId:    senderId,
			IsFromAdmin: msg.IsFromAdmin(),
			CreatedAt:   msg.CreatedAt.UTC(),
		},
	}
}

func SystemNotice(content string) *ServerMessage {
	return &ServerMessage{Type: EventSystem, Notice: content}
}

func ErrInvalidMessage(reason string) *ServerMessage {
	return &ServerMessage{
		Type: EventError,
		Error: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}
}

// ErrNotPersisted is the negative acknowledgment for a message the store
// did not record. The message was not delivered to anyone.
func ErrNotPersisted() *ServerMessage {
	return &ServerMessage{
		Type: EventError,
		Error: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "message not sent",
		},
	}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
