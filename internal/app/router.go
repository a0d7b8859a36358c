package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/components"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/products"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/suppliers"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/warehouses"
	"github.com/foundry-mes/foundry-mes/internal/materials"
	"github.com/foundry-mes/foundry-mes/internal/notifications"
	"github.com/foundry-mes/foundry-mes/internal/observability"
	"github.com/foundry-mes/foundry-mes/internal/orders"
	"github.com/foundry-mes/foundry-mes/internal/procurement"
	"github.com/foundry-mes/foundry-mes/internal/sales"
	"github.com/foundry-mes/foundry-mes/internal/stocktake"
	"github.com/foundry-mes/foundry-mes/internal/workorders"
	"github.com/foundry-mes/foundry-mes/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	ComponentsHandler  *components.Handler
	WarehousesHandler  *warehouses.Handler
	SuppliersHandler   *suppliers.Handler
	ProductsHandler    *products.Handler
	InventoryHandler   *inventory.Handler
	OrdersHandler      *orders.Handler
	WorkOrdersHandler  *workorders.Handler
	MaterialsHandler   *materials.Handler
	StocktakeHandler   *stocktake.Handler
	ProcurementHandler *procurement.Handler
	SalesHandler       *sales.Handler
	NotifyHandler      *notifications.Handler
	JobsHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/components", params.ComponentsHandler.MountRoutes)
		r.Route("/warehouses", params.WarehousesHandler.MountRoutes)
		r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		r.Route("/products", params.ProductsHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/production-requests", params.OrdersHandler.MountRoutes)
		r.Route("/work-orders", params.WorkOrdersHandler.MountRoutes)
		r.Route("/material-requests", params.MaterialsHandler.MountRoutes)
		r.Route("/stocktakes", params.StocktakeHandler.MountRoutes)
		r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
		r.Route("/sales-orders", params.SalesHandler.MountRoutes)
		r.Route("/notifications", params.NotifyHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
