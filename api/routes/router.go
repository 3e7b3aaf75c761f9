package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcore-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketcore-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketcore-backend/internal/checkout"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketcore-backend/pkg/redis"
)

const checkoutPolicyName = "checkout"

// RateLimiter is the fixed-window counter backing per-user limits.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// VendorLookup resolves the active vendor owned by a user.
type VendorLookup interface {
	FindByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Vendor, error)
}

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger

	Idempotency pkgredis.IdempotencyStore
	RateLimiter RateLimiter
	Vendors     VendorLookup

	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Notifications notifications.Service

	WebhookVerifier   webhookcontrollers.EventVerifier
	WebhookReconciler webhookcontrollers.EventReconciler
	WebhookGuard      webhookcontrollers.EventGuard

	// Gatherer backs /metrics; the default registry is used when nil.
	Gatherer prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})
	r.Handle("/metrics", metricsHandler(deps.Gatherer))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(deps.WebhookVerifier, deps.WebhookReconciler, deps.WebhookGuard, logg))
	})

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   checkoutPolicyName,
		Window: cfg.RateLimit.CheckoutWindow,
		Limit:  cfg.RateLimit.CheckoutLimit,
	}

	idem := middleware.NewIdempotency(deps.Idempotency, logg)
	critical := idem.Require(middleware.CriticalReplayTTL)
	standard := idem.Require(middleware.ReplayTTL)
	checkoutLimit := middleware.RateLimit(checkoutPolicy, deps.RateLimiter, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		// Replays are answered before the rate limiter so retries do not spend quota.
		r.Route("/checkout", func(r chi.Router) {
			r.With(critical, checkoutLimit).Post("/", controllers.Checkout(deps.Checkout, logg))
			r.With(critical, checkoutLimit).Post("/payment-intent", controllers.CreatePaymentIntent(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(critical).Patch("/{orderId}", ordercontrollers.Update(deps.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.With(standard).Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.With(standard).Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleVendor))
			r.Use(middleware.VendorContext(deps.Vendors, logg))
			r.Get("/orders", ordercontrollers.VendorList(deps.Orders, logg))
			r.With(standard).Patch("/orders/{itemId}", ordercontrollers.VendorUpdateStatus(deps.Orders, logg))
			r.With(standard).Post("/orders/{itemId}/tracking", ordercontrollers.VendorAddTracking(deps.Orders, logg))
		})
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
