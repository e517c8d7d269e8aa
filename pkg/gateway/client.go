// Package gateway is a thin REST client for the card/virtual-account payment
// gateway. It centralizes auth, logging and error mapping.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

const (
	confirmPath      = "/v1/payments/confirm"
	cancelPathFormat = "/v1/payments/%s/cancel"
	defaultTimeout   = 10 * time.Second
)

var (
	errSecretKeyRequired = errors.New("payment gateway secret key is required")
	errBaseURLRequired   = errors.New("payment gateway base url is required")
)

// Payment is the subset of the gateway payment object the marketplace reads.
type Payment struct {
	PaymentKey  string              `json:"paymentKey"`
	OrderID     string              `json:"orderId"`
	Status      enums.PaymentStatus `json:"status"`
	Method      string              `json:"method"`
	TotalAmount int64               `json:"totalAmount"`
	ApprovedAt  string              `json:"approvedAt,omitempty"`
}

// ApprovedTime parses ApprovedAt, returning the zero time when absent.
func (p *Payment) ApprovedTime() time.Time {
	if p == nil || p.ApprovedAt == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, p.ApprovedAt)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// ConfirmRequest approves a payment the buyer authorized in the checkout widget.
type ConfirmRequest struct {
	PaymentKey     string `json:"paymentKey"`
	OrderID        string `json:"orderId"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"-"`
}

// CancelRequest reverses a settled payment in full.
type CancelRequest struct {
	PaymentKey     string `json:"-"`
	Reason         string `json:"cancelReason"`
	IdempotencyKey string `json:"-"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client calls the gateway REST API with the merchant secret key.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL overrides the configured API origin.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewClient validates the credentials and builds the client.
func NewClient(cfg config.PaymentsConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(secret+":")),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errBaseURLRequired
	}
	return c, nil
}

// Confirm approves the payment identified by PaymentKey.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error) {
	c.log(ctx, "request", "confirm_payment", map[string]any{"order_id": req.OrderID, "amount": req.Amount})
	var payment Payment
	if err := c.post(ctx, confirmPath, req.IdempotencyKey, req, &payment); err != nil {
		c.log(ctx, "error", "confirm_payment", map[string]any{"error": err.Error()})
		return nil, err
	}
	c.log(ctx, "response", "confirm_payment", map[string]any{"order_id": payment.OrderID, "status": payment.Status})
	return &payment, nil
}

// Cancel reverses the payment identified by PaymentKey.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*Payment, error) {
	if strings.TrimSpace(req.PaymentKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment key is required")
	}
	path := fmt.Sprintf(cancelPathFormat, url.PathEscape(req.PaymentKey))
	c.log(ctx, "request", "cancel_payment", map[string]any{"reason": req.Reason})
	var payment Payment
	if err := c.post(ctx, path, req.IdempotencyKey, req, &payment); err != nil {
		c.log(ctx, "error", "cancel_payment", map[string]any{"error": err.Error()})
		return nil, err
	}
	c.log(ctx, "response", "cancel_payment", map[string]any{"order_id": payment.OrderID, "status": payment.Status})
	return &payment, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read gateway response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return mapGatewayError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
	}
	return nil
}

func mapGatewayError(status int, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)
	message := "payment gateway request failed"
	if apiErr.Message != "" {
		message = apiErr.Message
	}
	details := map[string]any{"gateway_status": status}
	if apiErr.Code != "" {
		details["gateway_code"] = apiErr.Code
	}
	return pkgerrors.New(domainCodeForStatus(status, apiErr.Code), message).WithDetails(details)
}

func domainCodeForStatus(status int, gatewayCode string) pkgerrors.Code {
	switch gatewayCode {
	case "ALREADY_PROCESSED_PAYMENT", "ALREADY_CANCELED_PAYMENT":
		return pkgerrors.CodeAlreadyProcessed
	case "DUPLICATED_ORDER_ID":
		return pkgerrors.CodeIdempotency
	}
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	if phase == "error" {
		c.logger.Error(ctx, fmt.Sprintf("gateway %s", op), errors.New(fmt.Sprint(fields["error"])))
		return
	}
	c.logger.Info(ctx, fmt.Sprintf("gateway %s", phase))
}
