// Package api exposes sqlscope over HTTP.
//
// Every handler reads a fresh config snapshot and builds its upstream
// clients from it, so a PUT /config or POST /config/reload takes effect on
// the next request without a restart.
//
// Route groups
// ------------
//
//	/healthz            liveness
//	/config             view, update, reload
//	/metrics/*          Elasticsearch telemetry
//	/analysis/*         Ollama summaries
//	/live/*             SQL Server DMVs
//	/internal/metrics   Prometheus exposition
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/sqlscope/internal/assistant"
	"github.com/yanizio/sqlscope/internal/config"
	"github.com/yanizio/sqlscope/internal/database"
	"github.com/yanizio/sqlscope/internal/middleware"
	"github.com/yanizio/sqlscope/internal/search"
)

// ConfigStore is the slice of *config.Manager the handlers use.
type ConfigStore interface {
	Get() config.Settings
	Update(config.Patch) (config.Settings, error)
	Reload() (config.Settings, error)
}

// Telemetry answers the /metrics routes.
type Telemetry interface {
	LatestWaits(ctx context.Context, instance string, limit int) ([]search.WaitStat, error)
	BlockingSessions(ctx context.Context, instance string, limit int) ([]search.BlockingEvent, error)
	RawLogs(ctx context.Context, query string, limit int) ([]search.Document, error)
}

// Analyzer answers the /analysis routes.
type Analyzer interface {
	Analyze(ctx context.Context, title string, metrics []map[string]any, issues string) (assistant.Result, error)
}

// Live answers the /live routes.  Close is called once per request.
type Live interface {
	WaitStats(ctx context.Context, limit int) ([]database.Row, error)
	Blocking(ctx context.Context, limit int) ([]database.Row, error)
	ActiveSessions(ctx context.Context, limit int) ([]database.Row, error)
	Close() error
}

// Deps wires the handlers to their collaborators.  The factories receive
// the section of the snapshot taken for the current request.
type Deps struct {
	Config    ConfigStore
	Telemetry func(config.SearchSettings) (Telemetry, error)
	Analyzer  func(config.AssistantSettings) Analyzer
	Live      func(context.Context, config.DatabaseSettings) (Live, error)
}

// DefaultDeps binds the production clients to store.
func DefaultDeps(store ConfigStore) Deps {
	return Deps{
		Config: store,
		Telemetry: func(s config.SearchSettings) (Telemetry, error) {
			cli, err := search.New(s)
			if err != nil {
				return nil, err
			}
			return search.NewService(cli), nil
		},
		Analyzer: func(s config.AssistantSettings) Analyzer { return assistant.New(s) },
		Live: func(ctx context.Context, s config.DatabaseSettings) (Live, error) {
			db, err := database.Open(ctx, s)
			if err != nil {
				return nil, err
			}
			return database.NewCollector(db), nil
		},
	}
}

// NewRouter builds the full handler tree.
func NewRouter(d Deps) http.Handler {
	h := &handlers{deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Observe)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.getConfig)
		r.Put("/", h.putConfig)
		r.Post("/reload", h.reloadConfig)
	})

	r.Route("/metrics", func(r chi.Router) {
		r.Get("/wait-stats", h.waitStats)
		r.Get("/blocking", h.blocking)
		r.Get("/logs", h.logs)
	})

	r.Route("/analysis", func(r chi.Router) {
		r.Post("/insights", h.insights)
		r.Post("/report", h.report)
	})

	r.Route("/live", func(r chi.Router) {
		r.Get("/waits", h.liveWaits)
		r.Get("/blocking", h.liveBlocking)
		r.Get("/sessions", h.liveSessions)
	})

	r.Method(http.MethodGet, "/internal/metrics", promhttp.Handler())
	return r
}

type handlers struct {
	deps Deps
}
