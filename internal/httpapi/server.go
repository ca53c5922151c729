// Package httpapi serves the joke site's JSON API, RSS feed and sitemap.
package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"viola-joke/internal/service"
)

const (
	VisitorHeader   = "X-Visitor-ID"
	RemainingHeader = "X-RateLimit-Remaining"
	QuotaHeader     = "X-Jokes-Remaining"

	maxBodyBytes = 64 << 10
	unknownKey   = "unknown"
)

type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

// NewRouter mounts every route on a chi router. log receives one access line
// per request.
func NewRouter(h *Handlers, log zerolog.Logger, healthEndpoint string) http.Handler {
	if healthEndpoint == "" {
		healthEndpoint = "/healthz"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(req).Info().
			Str("request_id", middleware.GetReqID(req.Context())).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get(healthEndpoint, h.health)
	r.Get("/feed.xml", h.feed)
	r.Get("/sitemap.xml", h.sitemap)

	r.Route("/api", func(r chi.Router) {
		r.Get("/random", h.random)
		r.Get("/jokes", h.listJokes)
		r.Get("/jokes/{slug}", h.jokeBySlug)
		r.Get("/search", h.search)
		r.Get("/tags", h.tags)
		r.Get("/tags/{tag}", h.byTag)
		r.Post("/submit", h.submit)
		r.Get("/ads", h.ads)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.adminLogin)
			r.Get("/submissions", h.adminSubmissions)
			r.Post("/approve", h.adminApprove)
			r.Post("/delete", h.adminDelete)
			r.Post("/premium", h.adminPremium)
		})

		r.Post("/visitors", h.createVisitor)
		r.Get("/visitors/me", h.currentVisitor)

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", h.listFavorites)
			r.Post("/", h.addFavorite)
			r.Delete("/{jokeID}", h.removeFavorite)
		})
	})

	return r
}

// ClientKey identifies the submitter for rate limiting: the first
// X-Forwarded-For entry, then X-Real-IP, then the peer address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return unknownKey
}
