package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/rfqmarket-backend/internal/cron"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/internal/payments"
	pkgAuth "github.com/angelmondragon/rfqmarket-backend/pkg/auth"
	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

// stubDeals overrides only what the routes below reach.
type stubDeals struct {
	deals.Service
}

func (stubDeals) CreateRFQ(ctx context.Context, input deals.CreateRFQInput) (*models.RFQ, error) {
	return &models.RFQ{ID: uuid.New(), BuyerID: input.Actor.UserID, Title: input.Title, Status: enums.RFQStatusOpen}, nil
}

func (stubDeals) GetOrder(ctx context.Context, orderID uuid.UUID, actor deals.Actor) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusPreparing}, nil
}

type stubPayments struct {
	mu       sync.Mutex
	confirms int
	webhooks int
}

func (s *stubPayments) Confirm(ctx context.Context, input payments.ConfirmInput) (*payments.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirms++
	return &payments.ConfirmResult{
		Order:         &models.Order{ID: input.OrderID, Status: enums.OrderStatusPaid},
		PaymentStatus: enums.PaymentStatusDone,
	}, nil
}

func (s *stubPayments) Cancel(ctx context.Context, input payments.CancelInput) (*deals.CancelOrderResult, error) {
	return &deals.CancelOrderResult{Order: &models.Order{ID: input.OrderID, Status: enums.OrderStatusCancelled}}, nil
}

func (s *stubPayments) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks++
	return fmt.Errorf("invalid signature")
}

type stubSweeper struct{ runs int }

func (s *stubSweeper) Sweep(ctx context.Context) (*cron.SweepSummary, error) {
	s.runs++
	return &cron.SweepSummary{ProcessedCount: 1, RefundedAmount: 30000, TotalExpiredRooms: 1}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

type routerFixture struct {
	handler  http.Handler
	cfg      *config.Config
	payments *stubPayments
	sweeper  *stubSweeper
}

func newRouterFixture(t *testing.T, redisErr error) *routerFixture {
	t.Helper()
	cfg := &config.Config{
		App:  config.AppConfig{Env: "dev"},
		JWT:  config.JWTConfig{Secret: "router-secret", Issuer: "rfqmarket", ExpirationMinutes: 5},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
	reg := prometheus.NewRegistry()
	cache, err := payments.NewReplayCache(&memoryStore{data: map[string]string{}}, time.Hour)
	if err != nil {
		t.Fatalf("replay cache: %v", err)
	}
	fixture := &routerFixture{cfg: cfg, payments: &stubPayments{}, sweeper: &stubSweeper{}}
	fixture.handler = NewRouter(
		cfg,
		logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		Probes{DB: stubPinger{}, Redis: stubPinger{err: redisErr}},
		reg,
		Services{
			Deals:          stubDeals{},
			Payments:       fixture.payments,
			Sweeper:        fixture.sweeper,
			ReplayCache:    cache,
			PaymentMetrics: metrics.NewPaymentMetrics(reg),
		},
	)
	return fixture
}

func (f *routerFixture) token(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *routerFixture) do(method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	f := newRouterFixture(t, nil)
	if resp := f.do(http.MethodGet, "/health/live", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/health/ready", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", resp.Code)
	}

	down := newRouterFixture(t, fmt.Errorf("redis down"))
	if resp := down.do(http.MethodGet, "/health/ready", "", "", nil); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with redis down: expected 503 got %d", resp.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newRouterFixture(t, nil)
	resp := f.do(http.MethodGet, "/metrics", "", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newRouterFixture(t, nil)
	resp := f.do(http.MethodPost, "/api/v1/rfqs", "", `{"title":"Bolts","quantity":10}`, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRoleGates(t *testing.T) {
	f := newRouterFixture(t, nil)
	tests := []struct {
		name   string
		method string
		path   string
		role   enums.ActorRole
		body   string
		status int
	}{
		{name: "buyer creates rfq", method: http.MethodPost, path: "/api/v1/rfqs", role: enums.ActorRoleBuyer, body: `{"title":"Bolts","quantity":10}`, status: http.StatusCreated},
		{name: "supplier cannot create rfq", method: http.MethodPost, path: "/api/v1/rfqs", role: enums.ActorRoleSupplier, body: `{"title":"Bolts","quantity":10}`, status: http.StatusForbidden},
		{name: "buyer cannot read credits", method: http.MethodGet, path: "/api/v1/credits/balance", role: enums.ActorRoleBuyer, status: http.StatusForbidden},
		{name: "supplier cannot sweep", method: http.MethodPost, path: "/api/v1/admin/negotiations/sweep", role: enums.ActorRoleSupplier, status: http.StatusForbidden},
		{name: "admin sweeps", method: http.MethodPost, path: "/api/v1/admin/negotiations/sweep", role: enums.ActorRoleAdmin, status: http.StatusOK},
		{name: "any party reads order", method: http.MethodGet, path: "/api/v1/orders/" + uuid.NewString(), role: enums.ActorRoleSupplier, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(tt.method, tt.path, f.token(t, tt.role), tt.body, nil)
			if resp.Code != tt.status {
				t.Fatalf("expected %d got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
	if f.sweeper.runs != 1 {
		t.Fatalf("expected one sweep, got %d", f.sweeper.runs)
	}
}

func TestPaymentConfirmReplaysThroughRouter(t *testing.T) {
	f := newRouterFixture(t, nil)
	token := f.token(t, enums.ActorRoleBuyer)
	body := `{"order_id":"` + uuid.NewString() + `","payment_key":"pk_1","amount":1030000}`

	first := f.do(http.MethodPost, "/api/v1/payments/confirm", token, body, map[string]string{"Idempotency-Key": "k-1"})
	if first.Code != http.StatusOK {
		t.Fatalf("first confirm: expected 200 got %d: %s", first.Code, first.Body.String())
	}
	second := f.do(http.MethodPost, "/api/v1/payments/confirm", token, body, map[string]string{"Idempotency-Key": "k-1"})
	if second.Code != http.StatusOK || second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 200, got %d replayed=%q", second.Code, second.Header().Get("Idempotent-Replayed"))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body differs")
	}
	if f.payments.confirms != 1 {
		t.Fatalf("expected one gateway confirm, got %d", f.payments.confirms)
	}

	missing := f.do(http.MethodPost, "/api/v1/payments/confirm", token, body, nil)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("missing key: expected 400 got %d", missing.Code)
	}
}

func TestPaymentCancelRequiresIdempotencyKey(t *testing.T) {
	f := newRouterFixture(t, nil)
	path := "/api/v1/payments/" + uuid.NewString() + "/cancel"
	resp := f.do(http.MethodPost, path, f.token(t, enums.ActorRoleAdmin), `{"reason":"fraud"}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", resp.Code)
	}
	resp = f.do(http.MethodPost, path, f.token(t, enums.ActorRoleAdmin), `{"reason":"fraud"}`, map[string]string{"Idempotency-Key": "c-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = f.do(http.MethodPost, path, f.token(t, enums.ActorRoleSupplier), `{"reason":"fraud"}`, map[string]string{"Idempotency-Key": "c-2"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("supplier cancel: expected 403 got %d", resp.Code)
	}
}

func TestPaymentWebhookIsPublicAndAlwaysAcknowledged(t *testing.T) {
	f := newRouterFixture(t, nil)
	resp := f.do(http.MethodPost, "/api/v1/webhooks/payments", "", `{"eventType":"PAYMENT_COMPLETED"}`, map[string]string{"X-Payment-Signature": "bad"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if f.payments.webhooks != 1 {
		t.Fatalf("expected webhook handled once, got %d", f.payments.webhooks)
	}
}
