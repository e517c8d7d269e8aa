package payments

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/redis"
)

const (
	defaultReplayTTL  = 24 * time.Hour
	defaultPendingTTL = 2 * time.Minute
)

// ReplayRecord is a stored response, replayed byte for byte on a retry.
type ReplayRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
}

// Payload decodes the stored body.
func (r *ReplayRecord) Payload() []byte {
	if r == nil {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(r.Body)
	if err != nil {
		return nil
	}
	return decoded
}

// ReplayCache keeps responses to idempotent payment requests for a fixed
// window, keyed by (scope, token). A pending marker is written before the
// request runs so a concurrent duplicate is refused instead of executed twice.
type ReplayCache struct {
	store      redis.IdempotencyStore
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewReplayCache builds a cache over the shared idempotency store.
func NewReplayCache(store redis.IdempotencyStore, ttl time.Duration) (*ReplayCache, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &ReplayCache{store: store, ttl: ttl, pendingTTL: defaultPendingTTL}, nil
}

// HashRequest fingerprints a request body.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Begin reserves the token for this request. It returns the stored record
// when the request was already answered, or nil when the caller should run
// the request and then Complete or Release the token.
func (c *ReplayCache) Begin(ctx context.Context, scope, token, requestHash string) (*ReplayRecord, error) {
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	}
	key := c.store.IdempotencyKey(scope, token)
	marker, err := json.Marshal(ReplayRecord{RequestHash: requestHash, Pending: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency marker")
	}
	reserved, err := c.store.SetNX(ctx, key, string(marker), c.pendingTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if reserved {
		return nil, nil
	}

	stored, err := c.store.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			// The marker lapsed between SetNX and Get; try once more.
			return c.retryReserve(ctx, key, string(marker))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record ReplayRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if record.RequestHash != requestHash {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	if record.Pending {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress")
	}
	return &record, nil
}

func (c *ReplayCache) retryReserve(ctx context.Context, key, marker string) (*ReplayRecord, error) {
	reserved, err := c.store.SetNX(ctx, key, marker, c.pendingTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if !reserved {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress")
	}
	return nil, nil
}

// Complete stores the response for the replay window. Server errors are not
// cached; the token is released so the client can retry.
func (c *ReplayCache) Complete(ctx context.Context, scope, token, requestHash string, status int, contentType string, body []byte) error {
	if status >= http.StatusInternalServerError {
		return c.Release(ctx, scope, token)
	}
	payload, err := json.Marshal(ReplayRecord{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(body),
		ContentType: contentType,
		RequestHash: requestHash,
	})
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	return c.store.Set(ctx, c.store.IdempotencyKey(scope, token), string(payload), c.ttl)
}

// Release drops the reservation without storing a response.
func (c *ReplayCache) Release(ctx context.Context, scope, token string) error {
	return c.store.Del(ctx, c.store.IdempotencyKey(scope, token))
}
