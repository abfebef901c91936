package database

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type PgSupportRepository struct {
	conn *sql.DB
	now  func() time.Time
}

func NewPgSupportRepository(dsn string) (*PgSupportRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return newPgSupportRepository(db), nil
}

func newPgSupportRepository(db *sql.DB) *PgSupportRepository {
	return &PgSupportRepository{conn: db, now: time.Now}
}

func (db *PgSupportRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgSupportRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
