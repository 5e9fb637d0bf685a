package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"messenger/internal/config"
	"messenger/internal/database"
	"messenger/internal/realtime"
	"messenger/internal/stats"
)

type MessengerApp struct {
	log            *log.Logger
	db             database.MessengerRepository
	mux            *http.Server
	hub            *realtime.Hub
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	// swappable in tests
	generateShortId func() (string, error)
}

func NewMessengerApp(mux *http.ServeMux, logger *log.Logger, hub *realtime.Hub,
	db database.MessengerRepository, sp stats.StatsProvider, cfg *config.Config) *MessengerApp {
	s := &MessengerApp{
		log:             logger,
		db:              db,
		hub:             hub,
		stats:           sp,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/users", s.listUsers)
	mux.Handle("POST /api/conversations", s.authMiddleware(s.createConversation))
	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("GET /api/conversations/{conversationId}", s.getConversation)
	mux.Handle("DELETE /api/conversations/{conversationId}", s.authMiddleware(s.deleteConversation))
	mux.Handle("POST /api/conversations/{conversationId}/seen", s.authMiddleware(s.markSeen))
	mux.Handle("POST /api/conversations/{conversationId}/leave", s.authMiddleware(s.leaveConversation))
	mux.Handle("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.HandleFunc("GET /api/messages", s.getMessages)
	mux.Handle("POST /api/settings", s.authMiddleware(s.updateSettings))
	mux.Handle("DELETE /api/account", s.authMiddleware(s.deleteAccount))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *MessengerApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *MessengerApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// publish sends an event to the hub after the triggering database write has
// committed. Delivery is fire-and-forget: failures are never surfaced to
// the caller.
func (s *MessengerApp) publish(channel, event string, payload any) {
	if s.hub == nil {
		return
	}

	s.hub.Publish(channel, event, payload)
}
