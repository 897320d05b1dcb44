package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig carries the HTTP-facing settings of the storefront.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RateLimitRPS   float64
	RateLimitBurst int
	PprofEnabled   bool
	PprofCIDRs     []string
	// CartPath is where the payment redirect landing sends the shopper.
	CartPath string
}

// NewRouter creates a chi router with all storefront routes registered. ctx
// bounds background work owned by the router, such as rate limiter cleanup.
func NewRouter(
	ctx context.Context,
	storefront *service.Storefront,
	inspect middleware.TokenInspector,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(45 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	cartHandler := NewCartHandler(logger)
	checkoutHandler := NewCheckoutHandler(storefront, logger)
	addressHandler := NewAddressHandler(storefront, logger)
	paymentHandler := NewPaymentRedirectHandler(cfg.CartPath, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		r.Use(middleware.Bearer(inspect))
		r.Use(Sessions(storefront))
		r.Use(middleware.RequestLogger(logger))

		r.Get("/payment/success", paymentHandler.Success)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)

				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{id}", cartHandler.UpdateItemQuantity)
				r.Delete("/items/{id}", cartHandler.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", checkoutHandler.GetCheckout)
				r.Post("/", checkoutHandler.StartCheckout)
				r.Delete("/", checkoutHandler.Reset)

				r.Post("/back", checkoutHandler.Back)
				r.Post("/address", checkoutHandler.SelectAddress)
				r.Post("/confirm", checkoutHandler.ConfirmPayment)
				r.Post("/widget-error", checkoutHandler.ReportWidgetError)
			})

			r.Delete("/session", checkoutHandler.Logout)

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", addressHandler.ListAddresses)
				r.Post("/", addressHandler.CreateAddress)
				r.Put("/{id}/default", addressHandler.SetDefaultAddress)
				r.Delete("/{id}", addressHandler.DeleteAddress)
			})
		})
	})

	return r
}
