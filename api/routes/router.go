package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rfqmarket-backend/api/controllers"
	creditcontrollers "github.com/angelmondragon/rfqmarket-backend/api/controllers/credits"
	ordercontrollers "github.com/angelmondragon/rfqmarket-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/rfqmarket-backend/api/controllers/payments"
	rfqcontrollers "github.com/angelmondragon/rfqmarket-backend/api/controllers/rfqs"
	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	"github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/internal/invoices"
	"github.com/angelmondragon/rfqmarket-backend/internal/notifications"
	"github.com/angelmondragon/rfqmarket-backend/internal/payments"
	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
)

// Services are the domain services mounted under /api/v1.
type Services struct {
	Deals         deals.Service
	Credits       credits.Service
	Payments      payments.Service
	Invoices      invoices.Service
	Notifications notifications.Service
	Sweeper       controllers.NegotiationSweeper

	ReplayCache    *payments.ReplayCache
	PaymentMetrics *metrics.PaymentMetrics
	HTTPMetrics    *metrics.HTTPMetrics
	DeadLetters    controllers.DeadLetterQueue
}

// Probes are the dependencies checked by /health/ready.
type Probes struct {
	DB    controllers.Pinger
	Redis controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	probes Probes,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, svc.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    probes.DB,
			"redis": probes.Redis,
		}))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Signed by the gateway; no bearer token.
	r.Post("/api/v1/webhooks/payments", paymentcontrollers.Webhook(svc.Payments, logg))

	idempotent := func(operation string) func(http.Handler) http.Handler {
		return middleware.Idempotent(svc.ReplayCache, svc.PaymentMetrics, logg, operation)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
			r.Post("/rfqs", rfqcontrollers.Create(svc.Deals, logg))
			r.Post("/rfqs/{rfqId}/cancel", rfqcontrollers.Cancel(svc.Deals, logg))
			r.Post("/quotes/{quoteId}/accept", rfqcontrollers.AcceptQuote(svc.Deals, logg))
			r.Post("/quotes/{quoteId}/reject", rfqcontrollers.RejectQuote(svc.Deals, logg))
			r.With(idempotent("confirm")).Post("/payments/confirm", paymentcontrollers.Confirm(svc.Payments, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSupplier))
			r.Post("/rfqs/{rfqId}/quotes", rfqcontrollers.SubmitQuote(svc.Deals, logg))
			r.Get("/credits/balance", creditcontrollers.Balance(svc.Credits, logg))
			r.Get("/credits/log", creditcontrollers.Log(svc.Credits, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleAdmin))
			r.With(idempotent("cancel")).Post("/payments/{orderId}/cancel", paymentcontrollers.Cancel(svc.Payments, logg))
		})

		r.Get("/rfqs/{rfqId}", rfqcontrollers.Get(svc.Deals, logg))
		r.Get("/quotes/{quoteId}", rfqcontrollers.GetQuote(svc.Deals, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(svc.Deals, logg))
			r.Post("/status", ordercontrollers.AdvanceStatus(svc.Deals, logg))
			r.Get("/invoice", ordercontrollers.Invoice(svc.Deals, svc.Invoices, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Post("/credits/{supplierId}/charge", creditcontrollers.AdminCharge(svc.Credits, logg))
			r.Get("/credits/{supplierId}/reconcile", creditcontrollers.AdminReconcile(svc.Credits, logg))
			r.Post("/negotiations/sweep", controllers.AdminSweepNegotiations(svc.Sweeper, logg))
			r.Get("/outbox/dead-letters", controllers.AdminListDeadLetters(svc.DeadLetters, logg))
			r.Post("/outbox/dead-letters/{eventId}/requeue", controllers.AdminRequeueDeadLetter(svc.DeadLetters, logg))
		})
	})

	return r
}
