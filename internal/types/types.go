package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the kind of party behind a connection.
type Role int

const (
	RoleCustomer Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	switch s {
	case "customer":
		*r = RoleCustomer
	case "admin":
		*r = RoleAdmin
	default:
		return fmt.Errorf("unknown role %q", s)
	}

	return nil
}

// Identity is a verified party as resolved by the authentication layer.
type Identity struct {
	UserId int  `json:"user_id"`
	Role   Role `json:"role"`
}

type User struct {
	Id        int       `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Message is a persisted chat message as returned by the history query.
type Message struct {
	Id          int64     `json:"id"`
	Content     string    `json:"content"`
	SenderId    int       `json:"sender_id"`
	ReceiverId  int       `json:"receiver_id"`
	IsFromAdmin bool      `json:"is_from_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserList is the body of the user directory.
type UserList struct {
	Users []User `json:"users"`
}

type Stats struct {
	TotalMessages     int `json:"total_messages"`
	ActiveConnections int `json:"active_connections"`
}
