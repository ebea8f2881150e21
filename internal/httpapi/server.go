// Package httpapi exposes the public site API (chat widget, contact form,
// published pages) and the admin dashboard API over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bouwsite/internal/chatbot"
	"bouwsite/internal/events"
	"bouwsite/internal/leads"
	"bouwsite/internal/storage"
	"bouwsite/internal/store"
)

const maxJSONBody = 8 << 20

// AuditLog is satisfied by *storage.Store.
type AuditLog interface {
	LogAction(ctx context.Context, e storage.AuditEntry) error
	ListActions(ctx context.Context, limit uint64) ([]storage.AuditEntry, error)
}

type Config struct {
	Stores  *store.Stores
	Chat    *chatbot.Service
	Intake  *leads.Intake
	Audit   AuditLog
	Events  *events.Bus
	Ping    func(ctx context.Context) error
	Logger  zerolog.Logger
	Timeout time.Duration

	AdminToken    string
	HealthPath    string
	MetricsPath   string
	MediaMaxBytes int
	// Heartbeat is the comment interval on the event stream.
	Heartbeat time.Duration
}

type Server struct {
	cfg    Config
	stores *store.Stores
	logger zerolog.Logger
	now    func() time.Time
}

func New(cfg Config) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	return &Server{cfg: cfg, stores: cfg.Stores, logger: cfg.Logger, now: time.Now}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(s.cfg.HealthPath, s.handleHealth)
	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Timeout))

			r.Post("/chat/sessions", s.handleStartSession)
			r.Post("/chat/sessions/{id}/messages", s.handleSendMessage)
			r.Post("/chat/sessions/{id}/close", s.handleCloseSession)
			r.Post("/contact", s.handleContact)
			r.Get("/pages/{slug}", s.handlePublishedPage)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth)

			// The event stream is long-lived and stays outside the timeout.
			r.Get("/events", s.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.cfg.Timeout))

				r.Get("/settings", s.handleGetSettings)
				r.Put("/settings", s.handlePutSettings)
				r.Get("/settings/prompt", s.handleGetPrompt)
				r.Post("/settings/knowledge", s.handleAddKnowledge)
				r.Delete("/settings/knowledge/{id}", s.handleDeleteKnowledge)

				r.Get("/sessions", s.handleListSessions)
				r.Delete("/sessions", s.handleClearSessions)
				r.Get("/sessions/{id}", s.handleGetSession)

				r.Get("/pages", s.handleListPages)
				r.Put("/pages", s.handlePutPage)
				r.Delete("/pages/{id}", s.handleDeletePage)

				r.Get("/media", s.handleListMedia)
				r.Post("/media", s.handleUploadMedia)
				r.Delete("/media/{id}", s.handleDeleteMedia)

				r.Get("/leads", s.handleListLeads)
				r.Get("/leads/export.csv", s.handleExportLeads)
				r.Put("/leads/{id}/status", s.handleLeadStatus)

				r.Get("/audit", s.handleAudit)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ping != nil {
		if err := s.cfg.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			s.respondError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

// adminAuth accepts the admin token as a bearer header, or as a token query
// parameter for clients that cannot set headers (EventSource).
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if s.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps collection errors to status codes.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrQuotaExceeded):
		s.respondError(w, http.StatusRequestEntityTooLarge, "storage quota exceeded, delete items first")
	case errors.Is(err, storage.ErrConflict):
		s.respondError(w, http.StatusConflict, "changed by someone else, reload and retry")
	default:
		s.logger.Error().Err(err).Msg("store operation failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) audit(r *http.Request, action, target string, meta map[string]any) {
	if s.cfg.Audit == nil {
		return
	}
	raw := "{}"
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			raw = string(b)
		}
	}
	err := s.cfg.Audit.LogAction(r.Context(), storage.AuditEntry{
		Actor:    "admin@" + clientIP(r),
		Action:   action,
		Target:   target,
		MetaJSON: raw,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
