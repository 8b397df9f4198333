package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/consumption"
	"github.com/sisco70/tabacchi/internal/observability"
	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/reconcile"
	"github.com/sisco70/tabacchi/internal/schedule"
	"github.com/sisco70/tabacchi/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CatalogHandler     *catalog.Handler
	OrdersHandler      *orders.Handler
	HistoryHandler     *orders.HistoryHandler
	ReconcileHandler   *reconcile.Handler
	ScheduleHandler    *schedule.Handler
	ConsumptionHandler *consumption.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the shop defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.CatalogHandler != nil {
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
	}
	if params.OrdersHandler != nil {
		var extra []func(chi.Router)
		if params.ReconcileHandler != nil {
			extra = append(extra, params.ReconcileHandler.MountRoutes)
		}
		if params.ScheduleHandler != nil {
			extra = append(extra, params.ScheduleHandler.MountOrderRoutes)
		}
		if params.HistoryHandler != nil {
			extra = append(extra, params.HistoryHandler.MountRoutes)
		}
		r.Route("/orders", func(r chi.Router) {
			params.OrdersHandler.MountRoutes(r, extra...)
		})
	}
	if params.ScheduleHandler != nil {
		r.Route("/schedule", params.ScheduleHandler.MountRoutes)
	}
	if params.ConsumptionHandler != nil {
		r.Route("/consumption", params.ConsumptionHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
