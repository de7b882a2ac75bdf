package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qrseal/qrseal-backend/api/controllers"
	creditcontrollers "github.com/qrseal/qrseal-backend/api/controllers/credits"
	ordercontrollers "github.com/qrseal/qrseal-backend/api/controllers/orders"
	paymentcontrollers "github.com/qrseal/qrseal-backend/api/controllers/payments"
	webhookcontrollers "github.com/qrseal/qrseal-backend/api/controllers/webhooks"
	"github.com/qrseal/qrseal-backend/api/middleware"
	"github.com/qrseal/qrseal-backend/internal/orders"
	"github.com/qrseal/qrseal-backend/internal/products"
	stripewebhook "github.com/qrseal/qrseal-backend/internal/webhooks/stripe"
	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/redis"
	"github.com/qrseal/qrseal-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	ordersSvc orders.Service,
	creditsSvc creditcontrollers.Ledger,
	paymentsSvc paymentcontrollers.Service,
	verifySvc products.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.EventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"postgres": dbP}
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		idemStore = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping("public"))
		r.Get("/v1/verify/{qrCode}", controllers.PublicVerify(verifySvc, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// gateway-origin endpoints: unauthenticated, always 200
		r.Post("/payments/webhook", stripeWebhookHandler(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
		r.Get("/payments/callback", paymentcontrollers.Callback(paymentsSvc, logg))
		r.Post("/payments/callback", paymentcontrollers.Callback(paymentsSvc, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idemStore, logg))
			r.Get("/ping", controllers.Ping("private"))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Create(ordersSvc, logg))
				r.Get("/", ordercontrollers.List(ordersSvc, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
				r.Put("/{orderId}/authorize", ordercontrollers.Authorize(ordersSvc, logg))
				r.Put("/{orderId}/process", ordercontrollers.Process(ordersSvc, logg))
				r.Put("/{orderId}/dispatching", ordercontrollers.MarkDispatching(ordersSvc, logg))
				r.Put("/{orderId}/dispatch", ordercontrollers.Dispatch(ordersSvc, logg))
				r.Put("/{orderId}/received", ordercontrollers.MarkReceived(ordersSvc, logg))
				r.Put("/{orderId}/reject", ordercontrollers.Reject(ordersSvc, logg))
			})
			r.Get("/payments/status/{merchantOrderId}", paymentcontrollers.Status(paymentsSvc, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.CompanyContext(logg))
				r.Post("/payments/initiate", paymentcontrollers.Initiate(paymentsSvc, logg))
				r.Get("/credits/balance", creditcontrollers.Balance(creditsSvc, logg))
				r.Get("/credits/transactions", creditcontrollers.Transactions(creditsSvc, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(idemStore, logg))
		r.Route("/companies/{companyId}/credits", func(r chi.Router) {
			r.Post("/", creditcontrollers.AdminGrant(creditsSvc, logg))
			r.Get("/verify", creditcontrollers.AdminVerify(creditsSvc, logg))
		})
	})

	return r
}

// stripeWebhookHandler keeps nil dependencies nil at the interface level.
func stripeWebhookHandler(
	svc *stripewebhook.Service,
	client *stripe.Client,
	guard *stripewebhook.EventGuard,
	logg *logger.Logger,
) http.HandlerFunc {
	var (
		handlerSvc    webhookcontrollers.StripeWebhookService
		handlerClient interface{ SigningSecret() string }
	)
	if svc != nil {
		handlerSvc = svc
	}
	if client != nil {
		handlerClient = client
	}
	if guard == nil {
		return webhookcontrollers.StripeWebhook(handlerSvc, handlerClient, nil, logg)
	}
	return webhookcontrollers.StripeWebhook(handlerSvc, handlerClient, guard, logg)
}
