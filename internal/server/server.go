// Package server provides the HTTP API: capture endpoints, the Telegram
// webhook adapter, and operational routes.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/capture"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/notify"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/otel"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
)

const defaultTimeout = 60 * time.Second

// Server holds the HTTP surface's dependencies.
type Server struct {
	router         *chi.Mux
	pipeline       *capture.Pipeline
	store          *store.Store
	sender         notify.Sender
	apiKeys        map[string]bool
	webhookSecret  string
	allowedChatIDs map[int64]bool
	imageMaxBytes  int64
	ratePerSecond  float64
	rateBurst      int
	startTime      time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithSender sets the outbound messaging connector for webhook replies.
func WithSender(s notify.Sender) Option {
	return func(srv *Server) { srv.sender = s }
}

// WithWebhookSecret sets the shared secret the Telegram webhook must present.
func WithWebhookSecret(secret string) Option {
	return func(srv *Server) { srv.webhookSecret = secret }
}

// WithAllowedChatIDs restricts the webhook to the listed chat ids. Empty
// means any chat.
func WithAllowedChatIDs(ids []int64) Option {
	return func(srv *Server) {
		srv.allowedChatIDs = make(map[int64]bool, len(ids))
		for _, id := range ids {
			srv.allowedChatIDs[id] = true
		}
	}
}

// WithImageMaxBytes sets the inbound image byte ceiling.
func WithImageMaxBytes(n int64) Option {
	return func(srv *Server) { srv.imageMaxBytes = n }
}

// WithRateLimit sets the per-key token bucket rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(srv *Server) {
		srv.ratePerSecond = perSecond
		srv.rateBurst = burst
	}
}

// NewServer builds a Server. apiKeys is the set of accepted API keys; empty
// disables auth (local single-user mode).
func NewServer(pipeline *capture.Pipeline, st *store.Store, apiKeys []string, opts ...Option) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		pipeline:      pipeline,
		store:         st,
		sender:        notify.NoopSender{},
		apiKeys:       make(map[string]bool, len(apiKeys)),
		imageMaxBytes: 2_621_440,
		ratePerSecond: 5,
		rateBurst:     10,
		startTime:     time.Now(),
	}
	for _, k := range apiKeys {
		s.apiKeys[k] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())

	// Unauthenticated
	r.Get("/health", s.handleHealth)

	// Webhook: shared-secret header instead of API-key auth.
	r.Post("/v1/telegram/webhook", s.handleTelegramWebhook)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.ratePerSecond, s.rateBurst))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/capture", s.handleCapture)
		r.Post("/v1/capture/image", s.handleCaptureImage)
		r.Get("/v1/logs", s.handleLogs)
	})

	return r
}
