package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/server/live"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy"
	"github.com/echook/telemetry-manager-go/pkg/service"
	"github.com/echook/telemetry-manager-go/pkg/utils"
	"github.com/echook/telemetry-manager-go/pkg/utils/cache"
	"github.com/echook/telemetry-manager-go/pkg/utils/cache/loadercache"
)

const (
	defaultPageSize   = 500
	maxPageSize       = 5000
	defaultIngestRate = 600 // requests per minute and client IP
	daysCacheTTL      = time.Minute
)

type (
	// Server provides the HTTP API for loggers and dashboards.
	Server struct {
		history          *service.HistoryService
		hub              *live.Hub
		proxy            proxy.DataProxy
		days             cache.Cache[string, []string]
		tokenHash        string
		minLoggerVersion string
		pageSize         int
		ingestRate       int
		l                *log.Logger
	}
	Option func(*Server)
)

func WithLogger(arg *log.Logger) Option {
	return func(srv *Server) {
		srv.l = arg
	}
}

// WithIngestToken guards the ingest routes with token. Only the hash is kept.
func WithIngestToken(token string) Option {
	return func(srv *Server) {
		if token != "" {
			srv.tokenHash = utils.HashToken(token)
		}
	}
}

// WithMinLoggerVersion rejects ingest from logger firmware older than version.
func WithMinLoggerVersion(version string) Option {
	return func(srv *Server) {
		srv.minLoggerVersion = version
	}
}

func WithPageSize(pageSize int) Option {
	return func(srv *Server) {
		if pageSize > 0 {
			srv.pageSize = pageSize
		}
	}
}

func WithIngestRateLimit(perMinute int) Option {
	return func(srv *Server) {
		if perMinute > 0 {
			srv.ingestRate = perMinute
		}
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewServer(
	history *service.HistoryService,
	hub *live.Hub,
	dataProxy proxy.DataProxy,
	opts ...Option,
) *Server {
	ret := &Server{
		history:    history,
		hub:        hub,
		proxy:      dataProxy,
		pageSize:   defaultPageSize,
		ingestRate: defaultIngestRate,
		l:          log.Default().Named("rest"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.days = loadercache.New[string, []string](
		loadercache.WithLoader[string, []string](ret.loadDays),
		loadercache.WithExpiration[string, []string](daysCacheTTL),
		loadercache.WithLogger[string, []string](ret.l.Named("days")))
	return ret
}

// Router mounts all API routes. The ingest routes sit behind the token and
// logger version gates plus a per-IP rate limit.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(traceID)
	router.Get("/healthz", s.handleHealth)
	router.Route("/api/v1/channels", func(r chi.Router) {
		r.Get("/", s.handleChannels)
		r.Route("/{channel}", func(r chi.Router) {
			r.Get("/history", s.handleHistory)
			r.Get("/days", s.handleDays)
			r.Get("/latest", s.handleLatest)
			r.Get("/live", s.hub.HandleLive)
			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(s.ingestRate, time.Minute))
				r.Use(s.requireIngestToken)
				r.Use(s.requireLoggerVersion)
				r.HandleFunc("/ingest", s.hub.HandleIngest)
			})
		})
	})
	return router
}
