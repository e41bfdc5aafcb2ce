package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderledger/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/orderledger/api/controllers/checkout"
	ledgercontrollers "github.com/angelmondragon/orderledger/api/controllers/ledger"
	ordercontrollers "github.com/angelmondragon/orderledger/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/orderledger/api/controllers/payments"
	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/internal/checkout"
	"github.com/angelmondragon/orderledger/internal/ledger"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/payments"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/redis"
)

// Dependencies is everything the HTTP surface is built from.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Checkout checkout.Service
	Payments payments.Intake
	Orders   orders.Service
	Ledger   ledger.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Metrics(deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Identity(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/v1", func(r chi.Router) {
			r.Post("/checkout", checkoutcontrollers.Submit(deps.Checkout, logg))
			r.Post("/checkout/preview", checkoutcontrollers.Preview(deps.Checkout, logg))

			r.With(middleware.RequireRole(logg, middleware.RoleInternal, middleware.RoleAdmin)).
				Post("/payments/events", paymentcontrollers.RecordOutcome(deps.Payments, logg))

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.Post("/confirm-receipt", ordercontrollers.ConfirmReceipt(deps.Orders, logg))
			})

			r.Route("/shop-owner", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, middleware.RoleShopOwner))
				r.Put("/orders/{orderId}/status", ordercontrollers.ShopOwnerUpdateStatus(deps.Orders, logg))
			})

			r.Route("/ledger/{shopOwnerId}", func(r chi.Router) {
				r.Get("/balance", ledgercontrollers.Balance(deps.Ledger, logg))
				r.Get("/entries", ledgercontrollers.Entries(deps.Ledger, logg))
				r.Get("/payouts", ledgercontrollers.PayoutHistory(deps.Ledger, logg))
				r.Post("/payouts", ledgercontrollers.RequestPayout(deps.Ledger, logg))
			})
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, middleware.RoleAdmin))
			r.Post("/orders/{orderId}/rollback", ordercontrollers.AdminRollback(deps.Orders, logg))
		})

		r.Route("/internal/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, middleware.RoleInternal))
			r.Post("/ledger/deduct-fee", ledgercontrollers.DeductFee(deps.Ledger, logg))
		})
	})

	return r
}
