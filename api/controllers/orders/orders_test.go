package orders

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

	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

type stubOrderService struct {
	getFn     func(ctx context.Context, orderID uuid.UUID, actor deals.Actor) (*models.Order, error)
	advanceFn func(ctx context.Context, input deals.AdvanceOrderInput) (*deals.AdvanceOrderResult, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID uuid.UUID, actor deals.Actor) (*models.Order, error) {
	return s.getFn(ctx, orderID, actor)
}

func (s *stubOrderService) AdvanceOrder(ctx context.Context, input deals.AdvanceOrderInput) (*deals.AdvanceOrderResult, error) {
	return s.advanceFn(ctx, input)
}

type stubInvoices struct {
	calls int
	inv   *models.Invoice
}

func (s *stubInvoices) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	s.calls++
	if s.inv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return s.inv, nil
}

func orderRequestFor(method, body string, orderID string, userID uuid.UUID, role enums.ActorRole) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/api/v1/orders/"+orderID, reader)
	req = req.WithContext(middleware.WithActor(req.Context(), userID.String(), role))
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestDetail(t *testing.T) {
	orderID := uuid.New()
	buyerID := uuid.New()
	svc := &stubOrderService{
		getFn: func(ctx context.Context, id uuid.UUID, actor deals.Actor) (*models.Order, error) {
			if actor.UserID != buyerID {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party")
			}
			return &models.Order{ID: id, BuyerID: buyerID, Status: enums.OrderStatusPreparing}, nil
		},
	}

	resp := httptest.NewRecorder()
	Detail(svc, testLogger())(resp, orderRequestFor(http.MethodGet, "", orderID.String(), buyerID, enums.ActorRoleBuyer))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	Detail(svc, testLogger())(resp, orderRequestFor(http.MethodGet, "", orderID.String(), uuid.New(), enums.ActorRoleBuyer))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAdvanceStatus(t *testing.T) {
	orderID := uuid.New()
	supplierID := uuid.New()
	var got deals.AdvanceOrderInput
	svc := &stubOrderService{
		advanceFn: func(ctx context.Context, input deals.AdvanceOrderInput) (*deals.AdvanceOrderResult, error) {
			got = input
			if input.Target == enums.OrderStatusCompleted {
				return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "supplier cannot complete").
					WithDetails(map[string]string{"from": "preparing", "to": "completed"})
			}
			return &deals.AdvanceOrderResult{Order: &models.Order{ID: input.OrderID, Status: input.Target}}, nil
		},
	}

	resp := httptest.NewRecorder()
	AdvanceStatus(svc, testLogger())(resp, orderRequestFor(http.MethodPost, `{"status":"shipping"}`, orderID.String(), supplierID, enums.ActorRoleSupplier))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Target != enums.OrderStatusShipping || got.Actor.Role != enums.ActorRoleSupplier || got.OrderID != orderID {
		t.Fatalf("unexpected input %+v", got)
	}
	if strings.Contains(resp.Body.String(), `"invoice"`) {
		t.Fatalf("invoice should be omitted when none was issued: %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	AdvanceStatus(svc, testLogger())(resp, orderRequestFor(http.MethodPost, `{"status":"completed"}`, orderID.String(), supplierID, enums.ActorRoleSupplier))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AdvanceStatus(svc, testLogger())(resp, orderRequestFor(http.MethodPost, `{"status":"teleported"}`, orderID.String(), supplierID, enums.ActorRoleSupplier))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestInvoiceChecksVisibilityFirst(t *testing.T) {
	orderID := uuid.New()
	buyerID := uuid.New()
	invoices := &stubInvoices{inv: &models.Invoice{OrderID: orderID, Number: "INV-20261019-0001", TotalAmount: 1030000}}
	svc := &stubOrderService{
		getFn: func(ctx context.Context, id uuid.UUID, actor deals.Actor) (*models.Order, error) {
			if actor.UserID != buyerID {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party")
			}
			return &models.Order{ID: id}, nil
		},
	}

	resp := httptest.NewRecorder()
	Invoice(svc, invoices, testLogger())(resp, orderRequestFor(http.MethodGet, "", orderID.String(), uuid.New(), enums.ActorRoleSupplier))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if invoices.calls != 0 {
		t.Fatal("invoice read before visibility check")
	}

	resp = httptest.NewRecorder()
	Invoice(svc, invoices, testLogger())(resp, orderRequestFor(http.MethodGet, "", orderID.String(), buyerID, enums.ActorRoleBuyer))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Number string `json:"number"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Data.Number != "INV-20261019-0001" {
		t.Fatalf("unexpected invoice number %q", envelope.Data.Number)
	}

	invoices.inv = nil
	resp = httptest.NewRecorder()
	Invoice(svc, invoices, testLogger())(resp, orderRequestFor(http.MethodGet, "", orderID.String(), buyerID, enums.ActorRoleBuyer))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
