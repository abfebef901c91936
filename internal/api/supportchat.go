package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-supportchat/internal/config"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
)

type SupportApp struct {
	log            *log.Logger
	db             database.SupportRepository
	relay          *server.Relay
	srv            *http.Server
	signingKey     []byte
	allowedOrigins []string
	adminId        int
}

// NewSupportApp mounts the chat routes on r and wraps it in the CORS, access
// log and panic recovery middleware.
func NewSupportApp(r chi.Router, logger *log.Logger, relay *server.Relay, db database.SupportRepository, cfg *config.Config) *SupportApp {
	s := &SupportApp{
		log:            logger,
		db:             db,
		relay:          relay,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		adminId:        cfg.AdminId,
	}

	r.Get("/healthz", s.healthCheck)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/ws", s.serveWs)
		r.Get("/api/chat/history/{user_id}", s.getHistory)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/api/chat/users", s.listUsers)
			r.Get("/api/stats", s.getStats)
		})
	})

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(r)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *SupportApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *SupportApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *SupportApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
