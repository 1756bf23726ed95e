package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harvestly/cart-engine/api/controllers"
	cartcontrollers "github.com/harvestly/cart-engine/api/controllers/cart"
	"github.com/harvestly/cart-engine/api/middleware"
	"github.com/harvestly/cart-engine/internal/boundary"
	cartstore "github.com/harvestly/cart-engine/internal/cart"
	"github.com/harvestly/cart-engine/pkg/config"
	"github.com/harvestly/cart-engine/pkg/keyval"
	"github.com/harvestly/cart-engine/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	kv keyval.Store,
	store *cartstore.Store,
	region *boundary.Boundary,
	faultSink middleware.FaultSink,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg, faultSink),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, kv))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/cart", func(r chi.Router) {
		r.Get("/", cartcontrollers.CartFetch(store, region, logg))
		r.Delete("/", cartcontrollers.CartClear(store, logg))
		r.Post("/items", cartcontrollers.CartAddItem(store, logg))
		r.Patch("/items/{productId}", cartcontrollers.CartUpdateQuantity(store, logg))
		r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(store, logg))
		r.Delete("/error", cartcontrollers.CartDismissError(store, logg))
		r.Get("/backup", cartcontrollers.CartBackupStatus(store, logg))
		r.Post("/recover", cartcontrollers.CartRecover(store, logg))
		r.Route("/render", func(r chi.Router) {
			r.Get("/", cartcontrollers.RenderStatus(region))
			r.Post("/retry", cartcontrollers.RenderRetry(region, logg))
			r.Post("/reset", cartcontrollers.RenderReset(region, logg))
		})
	})

	return r
}
