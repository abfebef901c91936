package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/npezzotti/go-supportchat/internal/api"
	"github.com/npezzotti/go-supportchat/internal/config"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr                string
	dsn                 string
	signingKey          string
	allowedOrigins      stringSliceFlag
	adminId             int
	diagnosticsSchedule string
	skipMigrations      bool
)

func main() {
	logger := log.New(os.Stderr, "[support-chat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Println("load .env:", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		logger.Fatal("env:", err)
	}

	flag.StringVar(&addr, "addr", env.ServerAddr, "server address")
	flag.StringVar(&dsn, "dsn", env.DatabaseDSN, "database connection string")
	flag.StringVar(&signingKey, "signing-key", env.SigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.IntVar(&adminId, "admin-id", env.AdminId, "user id the admin speaks as")
	flag.StringVar(&diagnosticsSchedule, "diagnostics-schedule", env.DiagnosticsSchedule, "cron schedule for connection diagnostics")
	flag.BoolVar(&skipMigrations, "skip-migrations", env.SkipMigrations, "do not apply database migrations at startup")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, adminId, diagnosticsSchedule)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgSupportRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if !skipMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	r := chi.NewRouter()

	statsUpdater := stats.NewStatsUpdater(r)
	relay := server.NewRelay(logger, dbConn, statsUpdater, cfg.AdminId)
	srv := api.NewSupportApp(r, logger, relay, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	diagnostics, err := relay.ScheduleDiagnostics(cfg.DiagnosticsSchedule)
	if err != nil {
		logger.Fatal("diagnostics:", err)
	}
	defer diagnostics.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("closing chat connections...")
	if err := relay.Shutdown(shutDownCtx); err != nil {
		logger.Println("relay shutdown:", err)
	}

	logger.Println("shutdown complete")
}
