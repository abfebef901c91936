package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-supportchat/internal/types"
)

const (
	insertConversationQuery = "INSERT INTO conversations (customer_id, last_message_at) VALUES ($1, $2) " +
		"ON CONFLICT (customer_id) DO NOTHING"
	lockConversationQuery   = "SELECT last_message_at FROM conversations WHERE customer_id = $1 FOR UPDATE"
	updateConversationQuery = "UPDATE conversations SET last_message_at = $2 WHERE customer_id = $1"
	insertMessageQuery      = "INSERT INTO messages (conversation_id, is_from_admin, content, created_at) " +
		"VALUES ($1, $2, $3, $4) RETURNING id"
	selectMessagesQuery = "SELECT id, conversation_id, is_from_admin, content, created_at FROM messages " +
		"WHERE conversation_id = $1 ORDER BY id ASC"
	countMessagesQuery = "SELECT COUNT(*) FROM messages"
	selectAccountQuery = "SELECT id, COALESCE(email, ''), COALESCE(name, ''), COALESCE(is_admin, FALSE), created_at " +
		"FROM users WHERE id = $1 LIMIT 1"
	selectUsersQuery = "SELECT id, COALESCE(email, ''), COALESCE(name, ''), COALESCE(is_admin, FALSE), created_at " +
		"FROM users ORDER BY id ASC"
)

// timestampResolution is the smallest step Postgres timestamptz can represent.
const timestampResolution = time.Microsecond

var epoch = time.Unix(0, 0).UTC()

// nextCreatedAt returns the timestamp for a message appended after one stamped
// last. It never goes backwards, even if the wall clock does.
func nextCreatedAt(last, now time.Time) time.Time {
	now = now.UTC().Truncate(timestampResolution)
	if !now.After(last) {
		return last.UTC().Add(timestampResolution)
	}

	return now
}

func (db *PgSupportRepository) AppendMessage(ctx context.Context, conversationId int, sender types.Role, content string) (msg Message, err error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, &types.ValidationError{Field: "content", Reason: "must not be empty"}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, insertConversationQuery, conversationId, epoch); err != nil {
		return Message{}, fmt.Errorf("create conversation: %w", err)
	}

	// the row lock serializes appends within one conversation
	var last time.Time
	if err = tx.QueryRowContext(ctx, lockConversationQuery, conversationId).Scan(&last); err != nil {
		return Message{}, fmt.Errorf("lock conversation: %w", err)
	}

	msg = Message{
		ConversationId: conversationId,
		SenderRole:     sender,
		Content:        content,
		CreatedAt:      nextCreatedAt(last, db.now()),
	}

	err = tx.QueryRowContext(
		ctx,
		insertMessageQuery,
		msg.ConversationId,
		msg.IsFromAdmin(),
		msg.Content,
		msg.CreatedAt,
	).Scan(&msg.Id)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err = tx.ExecContext(ctx, updateConversationQuery, conversationId, msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("update conversation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}

	return msg, nil
}

func (db *PgSupportRepository) GetMessages(ctx context.Context, conversationId int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx, selectMessagesQuery, conversationId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			msg         Message
			isFromAdmin bool
		)
		if err := rows.Scan(&msg.Id, &msg.ConversationId, &isFromAdmin, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.SenderRole = types.RoleCustomer
		if isFromAdmin {
			msg.SenderRole = types.RoleAdmin
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return messages, nil
}

func (db *PgSupportRepository) CountMessages(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, countMessagesQuery).Scan(&count)

	return count, err
}

func (db *PgSupportRepository) GetAccountById(id int) (Account, error) {
	var (
		account   Account
		createdAt sql.NullTime
	)
	err := db.conn.QueryRow(selectAccountQuery, id).Scan(
		&account.Id,
		&account.Email,
		&account.Name,
		&account.IsAdmin,
		&createdAt,
	)
	account.CreatedAt = createdAt.Time

	return account, err
}

func (db *PgSupportRepository) ListUsers() ([]Account, error) {
	rows, err := db.conn.Query(selectUsersQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		var (
			account   Account
			createdAt sql.NullTime
		)
		if err := rows.Scan(&account.Id, &account.Email, &account.Name, &account.IsAdmin, &createdAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		account.CreatedAt = createdAt.Time
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}
