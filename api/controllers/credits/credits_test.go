package credits

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	internalcredits "github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

type stubLedger struct {
	balance   int64
	logParams internalcredits.LogParams
	charged   *internalcredits.Movement
	reconcile *internalcredits.Reconciliation
}

func (s *stubLedger) GetBalance(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	return s.balance, nil
}

func (s *stubLedger) GetLog(ctx context.Context, params internalcredits.LogParams) (*internalcredits.LogResult, error) {
	s.logParams = params
	return &internalcredits.LogResult{}, nil
}

func (s *stubLedger) Charge(ctx context.Context, tx *gorm.DB, movement internalcredits.Movement) (*models.CreditLogEntry, error) {
	s.charged = &movement
	return &models.CreditLogEntry{
		ID:           uuid.New(),
		SupplierID:   movement.SupplierID,
		Amount:       movement.Amount,
		Kind:         enums.CreditLogKindCharge,
		BalanceAfter: s.balance + movement.Amount,
	}, nil
}

func (s *stubLedger) Reconcile(ctx context.Context, supplierID uuid.UUID) (*internalcredits.Reconciliation, error) {
	return s.reconcile, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withActor(req *http.Request, userID uuid.UUID, role enums.ActorRole) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), userID.String(), role))
}

func withParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestBalanceUsesAuthenticatedSupplier(t *testing.T) {
	supplierID := uuid.New()
	ledger := &stubLedger{balance: 70000}
	resp := httptest.NewRecorder()
	Balance(ledger, testLogger())(resp, withActor(httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil), supplierID, enums.ActorRoleSupplier))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data balanceResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Data.SupplierID != supplierID || envelope.Data.Balance != 70000 {
		t.Fatalf("unexpected body %+v", envelope.Data)
	}
}

func TestLogPaging(t *testing.T) {
	supplierID := uuid.New()
	ledger := &stubLedger{}

	resp := httptest.NewRecorder()
	req := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/credits/log?limit=10&cursor=abc", nil), supplierID, enums.ActorRoleSupplier)
	Log(ledger, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if ledger.logParams.Limit != 10 || ledger.logParams.Cursor != "abc" || ledger.logParams.SupplierID != supplierID {
		t.Fatalf("unexpected params %+v", ledger.logParams)
	}
	if !strings.Contains(resp.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	req = withActor(httptest.NewRequest(http.MethodGet, "/api/v1/credits/log?limit=1000", nil), supplierID, enums.ActorRoleSupplier)
	Log(ledger, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range limit, got %d", resp.Code)
	}
}

func TestAdminCharge(t *testing.T) {
	adminID := uuid.New()
	supplierID := uuid.New()
	ledger := &stubLedger{balance: 1000}

	body := `{"amount":50000,"description":"bank transfer 2026-10-18"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/credits/"+supplierID.String()+"/charge", strings.NewReader(body))
	req = withParam(withActor(req, adminID, enums.ActorRoleAdmin), "supplierId", supplierID.String())
	resp := httptest.NewRecorder()
	AdminCharge(ledger, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if ledger.charged == nil || ledger.charged.SupplierID != supplierID || ledger.charged.Amount != 50000 {
		t.Fatalf("unexpected movement %+v", ledger.charged)
	}
	if ledger.charged.Actor == nil || ledger.charged.Actor.UserID != adminID {
		t.Fatalf("expected admin actor on movement")
	}
	if !strings.Contains(resp.Body.String(), `"balance_after":51000`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	for _, bad := range []string{`{"amount":0,"description":"x"}`, `{"amount":5,"description":""}`, `{"amount":5,"description":"x","reference_id":"nope"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/credits/x/charge", strings.NewReader(bad))
		req = withParam(withActor(req, adminID, enums.ActorRoleAdmin), "supplierId", supplierID.String())
		resp := httptest.NewRecorder()
		AdminCharge(ledger, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400 got %d", bad, resp.Code)
		}
	}
}

func TestAdminReconcile(t *testing.T) {
	supplierID := uuid.New()
	ledger := &stubLedger{reconcile: &internalcredits.Reconciliation{SupplierID: supplierID, Balance: 100, LogSum: 90}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/admin/credits/x/reconcile", nil), "supplierId", supplierID.String())
	resp := httptest.NewRecorder()
	AdminReconcile(ledger, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"consistent":false`) || !strings.Contains(resp.Body.String(), `"log_sum":90`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
