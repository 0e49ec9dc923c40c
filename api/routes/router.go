package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	financecontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/finance"
	ordercontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/orders"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// OrderService is everything the order controllers need from the state
// machine service.
type OrderService interface {
	ordercontrollers.OrderReader
	ordercontrollers.Lifecycle
}

// RedisStore backs HTTP idempotency and rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	middleware.RateLimiterStore
}

// Dependencies carries the services and infrastructure wired by cmd/api.
type Dependencies struct {
	Tokens    middleware.TokenVerifier
	DB        controllers.Pinger
	Redis     RedisStore
	RedisPing controllers.Pinger
	Registry  *prometheus.Registry
	Orders    OrderService
	Returns   ordercontrollers.ReturnService
	Refunds   ordercontrollers.RefundService
	Disputes  ordercontrollers.DisputeService
	Finance   financecontrollers.Service
	Checkout  controllers.CheckoutService
	Cart      controllers.CartService
	Addresses controllers.AddressService
	// DeadLetters and OutboxEvents back the admin outbox inspection routes.
	DeadLetters  controllers.DeadLetterReader
	OutboxEvents controllers.OutboxEventReader
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	var httpMetrics *metrics.HTTPMetrics
	if deps.Registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(deps.Registry)
	}

	r.Use(
		middleware.Recoverer(logg),
		chimw.RealIP,
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.RedisPing,
		}))
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	writePolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, cfg.RateLimit.UserLimit)
	payoutPolicy := middleware.NewRateLimitPolicy("payouts", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, cfg.RateLimit.UserLimit)

	var idemStore pkgredis.IdempotencyStore
	var limiter middleware.RateLimiterStore
	if deps.Redis != nil {
		idemStore = deps.Redis
		limiter = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(deps.Tokens, logg),
			middleware.Idempotency(idemStore, logg),
		)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleCustomer))

			r.With(middleware.RateLimit(writePolicy, limiter, logg)).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			r.Get("/shipping/estimate", controllers.ShippingEstimate(deps.Checkout, logg))

			r.Get("/cart", controllers.CartGet(deps.Cart, logg))
			r.Put("/cart/items", controllers.CartSetItem(deps.Cart, logg))
			r.Get("/addresses", controllers.AddressList(deps.Addresses, logg))
			r.Post("/addresses", controllers.AddressCreate(deps.Addresses, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Route("/{code}", func(r chi.Router) {
					r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
					r.Get("/tracking", ordercontrollers.Tracking(deps.Orders, logg))
					r.Get("/invoice", ordercontrollers.Invoice(deps.Orders, logg))
					r.Post("/confirm-received", ordercontrollers.ConfirmReceived(deps.Orders, logg))
					r.Post("/cancel-request", ordercontrollers.CancelRequest(deps.Orders, logg))
					r.Post("/return-request", ordercontrollers.ReturnRequest(deps.Orders, deps.Returns, logg))
					r.Post("/refund-request", ordercontrollers.RefundRequest(deps.Orders, deps.Refunds, logg))
					r.Post("/dispute", ordercontrollers.DisputeOpen(deps.Orders, deps.Disputes, logg))
					r.Post("/dispute/revision", ordercontrollers.DisputeRevision(deps.Orders, deps.Disputes, logg))
				})
			})
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleSeller, enums.RoleAdmin))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Route("/{code}", func(r chi.Router) {
					r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
					r.Post("/confirm", ordercontrollers.Confirm(deps.Orders, logg))
					r.Post("/pack", ordercontrollers.Pack(deps.Orders, logg))
					r.Post("/create-shipment", ordercontrollers.CreateShipment(deps.Orders, logg))
					r.Post("/update-shipment", ordercontrollers.UpdateShipment(deps.Orders, logg, false))
					r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
					r.Post("/cancel-approve", ordercontrollers.CancelApprove(deps.Orders, logg))
					r.Post("/cancel-reject", ordercontrollers.CancelReject(deps.Orders, logg))
					r.Post("/return-approve", ordercontrollers.ReturnApprove(deps.Orders, deps.Returns, logg))
					r.Post("/return-reject", ordercontrollers.ReturnReject(deps.Orders, deps.Returns, logg))
					r.Post("/return-received", ordercontrollers.ReturnReceived(deps.Orders, deps.Returns, logg))
					r.Post("/refund-approve", ordercontrollers.RefundApprove(deps.Orders, deps.Refunds, logg))
					r.Post("/refund-reject", ordercontrollers.RefundReject(deps.Orders, deps.Refunds, logg))
					r.Post("/dispute-respond", ordercontrollers.DisputeRespond(deps.Orders, deps.Disputes, logg))
				})
			})

			r.Get("/return-requests", ordercontrollers.ReturnList(deps.Orders, deps.Returns, logg))
			r.Get("/refund-requests", ordercontrollers.RefundListForShop(deps.Orders, deps.Refunds, logg))
			r.Get("/disputes", ordercontrollers.DisputeListForShop(deps.Orders, deps.Disputes, logg))

			r.Get("/finance/summary", financecontrollers.Summary(deps.Orders, deps.Finance, logg))
			r.Get("/payout-account", financecontrollers.GetPayoutAccount(deps.Orders, deps.Finance, logg))
			r.Put("/payout-account", financecontrollers.UpsertPayoutAccount(deps.Orders, deps.Finance, logg))
			r.Get("/payouts", financecontrollers.ListPayouts(deps.Orders, deps.Finance, logg))
			r.With(middleware.RateLimit(payoutPolicy, limiter, logg)).Post("/payouts", financecontrollers.RequestPayout(deps.Orders, deps.Finance, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleCS))
			adminOnly := middleware.RequireRole(logg, enums.RoleAdmin)

			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{code}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(adminOnly).Post("/orders/{code}/force-cancel", ordercontrollers.ForceCancel(deps.Orders, logg))
			r.Post("/orders/{code}/shipment-override", ordercontrollers.UpdateShipment(deps.Orders, logg, true))

			r.Get("/disputes", ordercontrollers.DisputeListAll(deps.Orders, deps.Disputes, logg))
			r.Post("/disputes/{id}/review", ordercontrollers.DisputeReview(deps.Orders, deps.Disputes, logg))
			r.Post("/disputes/{id}/resolve", ordercontrollers.DisputeResolve(deps.Orders, deps.Disputes, logg))

			r.Get("/refunds", ordercontrollers.RefundListAll(deps.Orders, deps.Refunds, logg))
			r.Post("/refunds/{code}/approve", ordercontrollers.RefundApprove(deps.Orders, deps.Refunds, logg))
			r.Post("/refunds/{code}/reject", ordercontrollers.RefundReject(deps.Orders, deps.Refunds, logg))
			r.With(adminOnly).Post("/refunds/{code}/manual", ordercontrollers.RefundManual(deps.Orders, deps.Refunds, logg))

			r.Get("/payouts", financecontrollers.ListPayouts(deps.Orders, deps.Finance, logg))
			r.With(adminOnly).Post("/payouts/{id}/mark-paid", financecontrollers.MarkPayoutPaid(deps.Finance, logg))
			r.With(adminOnly).Post("/payouts/{id}/reject", financecontrollers.RejectPayout(deps.Finance, logg))

			r.Route("/outbox", func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/dead-letters", controllers.OutboxDeadLetters(deps.DeadLetters, logg))
				r.Get("/dead-letters/{eventId}", controllers.OutboxDeadLetter(deps.DeadLetters, logg))
				r.Get("/aggregates/{id}/events", controllers.OutboxAggregateEvents(deps.OutboxEvents, logg))
			})
		})
	})

	return r
}
