package payments

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Payment-Signature"

const maxWebhookBodyBytes = 1 << 20

// WebhookHandler processes gateway events.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// Webhook acknowledges every delivery with 200. Signature and processing
// failures are only logged.
func Webhook(svc WebhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logg.WithField(r.Context(), "event", "payments.webhook")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			logg.Error(ctx, "read webhook body failed", err)
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}
		if svc == nil {
			logg.Warn(ctx, "payment webhook received without a handler")
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if err := svc.HandleWebhook(ctx, body, r.Header.Get(SignatureHeader)); err != nil {
			logg.Error(ctx, "payment webhook processing failed", err)
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
