package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	DatabaseDSN         string
	ServerAddr          string
	SigningKey          []byte
	AllowedOrigins      []string
	AdminId             int
	DiagnosticsSchedule string
}

// Env holds the process environment. Command line flags take their defaults
// from it.
type Env struct {
	ServerAddr          string   `env:"SUPPORT_CHAT_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN         string   `env:"DATABASE_URL" envDefault:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningKey          string   `env:"SIGNING_KEY"`
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AdminId             int      `env:"ADMIN_ID" envDefault:"0"`
	DiagnosticsSchedule string   `env:"DIAGNOSTICS_SCHEDULE" envDefault:"@every 1m"`
	SkipMigrations      bool     `env:"SKIP_MIGRATIONS" envDefault:"false"`
}

func LoadEnv() (*Env, error) {
	e := &Env{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return e, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret decodes to an empty key")
	}

	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, adminId int, diagnosticsSchedule string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if adminId < 0 {
		return nil, fmt.Errorf("admin id cannot be negative")
	}
	if diagnosticsSchedule == "" {
		return nil, fmt.Errorf("diagnostics schedule cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:         databaseDSN,
		ServerAddr:          serverAddr,
		SigningKey:          signingKey,
		AllowedOrigins:      allowedOrigins,
		AdminId:             adminId,
		DiagnosticsSchedule: diagnosticsSchedule,
	}, nil
}
