package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketcore-backend/internal/checkout"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments"
	paymentwebhook "github.com/angelmondragon/marketcore-backend/internal/webhooks/payments"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	m.data[key] = str
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:idempotency:%s:%s", scope, id)
}

type countingLimiter struct {
	counts map[string]int64
}

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

type stubVendors struct {
	owners map[uuid.UUID]uuid.UUID
}

func (s stubVendors) FindByOwner(_ context.Context, ownerUserID uuid.UUID) (*models.Vendor, error) {
	vendorID, ok := s.owners[ownerUserID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	return &models.Vendor{ID: vendorID, OwnerUserID: ownerUserID, IsActive: true}, nil
}

type stubCheckout struct {
	calls int
}

func (s *stubCheckout) Execute(_ context.Context, in checkout.CheckoutInput) (*models.Order, error) {
	s.calls++
	return &models.Order{ID: uuid.New(), OrderNumber: "MC-TEST", UserID: in.UserID}, nil
}

func (s *stubCheckout) QuotePaymentIntent(context.Context, checkout.QuoteInput) (*checkout.IntentQuote, error) {
	return &checkout.IntentQuote{ClientSecret: "secret", PaymentIntentID: "pi_1", Currency: "usd"}, nil
}

type stubOrders struct {
	orders.Service
}

func (stubOrders) GetOrder(_ context.Context, _, orderID uuid.UUID) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: orderID}, nil
}

func (stubOrders) ListVendorOrders(context.Context, uuid.UUID, orders.VendorListParams) (*orders.VendorItemList, error) {
	return &orders.VendorItemList{}, nil
}

type stubNotifications struct{}

func (stubNotifications) List(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotifications) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (stubNotifications) MarkAllRead(context.Context, uuid.UUID) (int64, error) { return 0, nil }

type rejectingVerifier struct{}

func (rejectingVerifier) VerifyAndParse([]byte, string) (*payments.NormalizedEvent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "verify signature")
}

type noopReconciler struct{}

func (noopReconciler) Apply(context.Context, payments.NormalizedEvent) (paymentwebhook.Outcome, error) {
	return paymentwebhook.OutcomeApplied, nil
}

type routerFixture struct {
	handler    http.Handler
	cfg        *config.Config
	checkout   *stubCheckout
	vendorID   uuid.UUID
	vendorUser uuid.UUID
}

func newFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "test"},
		JWT:       config.JWTConfig{Secret: "router-secret", Issuer: "marketcore-test", ExpirationMinutes: 5},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{CheckoutWindow: time.Minute, CheckoutLimit: 1},
	}
	vendorUser, vendorID := uuid.New(), uuid.New()
	reg := prometheus.NewRegistry()
	marketMetrics := metrics.NewMarketplaceMetrics(reg)
	marketMetrics.IncCheckout("success")

	fx := &routerFixture{cfg: cfg, checkout: &stubCheckout{}, vendorID: vendorID, vendorUser: vendorUser}
	fx.handler = NewRouter(Dependencies{
		Config:            cfg,
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:                stubPinger{},
		Redis:             stubPinger{},
		Idempotency:       &memoryStore{data: map[string]string{}},
		RateLimiter:       &countingLimiter{counts: map[string]int64{}},
		Vendors:           stubVendors{owners: map[uuid.UUID]uuid.UUID{vendorUser: vendorID}},
		Checkout:          fx.checkout,
		Orders:            stubOrders{},
		Notifications:     stubNotifications{},
		WebhookVerifier:   rejectingVerifier{},
		WebhookReconciler: noopReconciler{},
		Gatherer:          reg,
	})
	return fx
}

func (fx *routerFixture) token(t *testing.T, userID uuid.UUID, role enums.UserRole, vendorID *uuid.UUID) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(fx.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID:   userID,
		Role:     role,
		VendorID: vendorID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (fx *routerFixture) do(method, path, body, token string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	return resp
}

func checkoutBody() string {
	return `{"shipping_address_id":"` + uuid.NewString() + `","billing_address_id":"` + uuid.NewString() +
		`","shipping_method_id":"` + uuid.NewString() + `","payment_intent_id":"pi_1"}`
}

func TestOperationalRoutes(t *testing.T) {
	fx := newFixture(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := fx.do(http.MethodGet, path, "", "", nil); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}

	resp := fx.do(http.MethodGet, "/metrics", "", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "checkout_attempts_total") {
		t.Fatalf("metrics output missing checkout counter")
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	fx := newFixture(t)
	resp := fx.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestWebhookSkipsAuth(t *testing.T) {
	fx := newFixture(t)
	resp := fx.do(http.MethodPost, "/api/v1/webhooks/payments", `{}`, "", map[string]string{"Stripe-Signature": "bad"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from signature check, got %d", resp.Code)
	}
}

func TestCheckoutIdempotencyAndRateLimit(t *testing.T) {
	fx := newFixture(t)
	token := fx.token(t, uuid.New(), enums.UserRoleCustomer, nil)

	if resp := fx.do(http.MethodPost, "/api/v1/checkout", checkoutBody(), token, nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing idempotency key: expected 400 got %d", resp.Code)
	}

	body := checkoutBody()
	headers := map[string]string{"Idempotency-Key": "key-1"}
	first := fx.do(http.MethodPost, "/api/v1/checkout", body, token, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}
	replay := fx.do(http.MethodPost, "/api/v1/checkout", body, token, headers)
	if replay.Code != http.StatusCreated || replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 201, got %d replayed=%q", replay.Code, replay.Header().Get("Idempotent-Replayed"))
	}
	if fx.checkout.calls != 1 {
		t.Fatalf("expected one checkout execution, got %d", fx.checkout.calls)
	}

	blocked := fx.do(http.MethodPost, "/api/v1/checkout", checkoutBody(), token, map[string]string{"Idempotency-Key": "key-2"})
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", blocked.Code)
	}
	if blocked.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestVendorRoutesRequireOwnedVendor(t *testing.T) {
	fx := newFixture(t)

	customer := fx.token(t, uuid.New(), enums.UserRoleCustomer, nil)
	if resp := fx.do(http.MethodGet, "/api/v1/vendor/orders", "", customer, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("customer: expected 403 got %d", resp.Code)
	}

	orphan := uuid.New()
	orphanToken := fx.token(t, uuid.New(), enums.UserRoleVendor, &orphan)
	if resp := fx.do(http.MethodGet, "/api/v1/vendor/orders", "", orphanToken, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("vendor without store: expected 403 got %d", resp.Code)
	}

	vendor := fx.token(t, fx.vendorUser, enums.UserRoleVendor, &fx.vendorID)
	if resp := fx.do(http.MethodGet, "/api/v1/vendor/orders?limit=10", "", vendor, nil); resp.Code != http.StatusOK {
		t.Fatalf("vendor: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestNotificationsRoutes(t *testing.T) {
	fx := newFixture(t)
	token := fx.token(t, uuid.New(), enums.UserRoleCustomer, nil)

	if resp := fx.do(http.MethodGet, "/api/v1/notifications?unreadOnly=true", "", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200 got %d", resp.Code)
	}
	path := "/api/v1/notifications/" + uuid.NewString() + "/read"
	if resp := fx.do(http.MethodPost, path, "", token, map[string]string{"Idempotency-Key": "n-1"}); resp.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}
