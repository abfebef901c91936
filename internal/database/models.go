package database

import (
	"time"

	"github.com/npezzotti/go-supportchat/internal/types"
)

// Account is the read-only view of a row in the externally managed users table.
type Account struct {
	Id        int
	Email     string
	Name      string
	IsAdmin   bool
	CreatedAt time.Time
}

type Message struct {
	Id             int64
	ConversationId int
	SenderRole     types.Role
	Content        string
	CreatedAt      time.Time
}

func (m Message) IsFromAdmin() bool {
	return m.SenderRole == types.RoleAdmin
}
