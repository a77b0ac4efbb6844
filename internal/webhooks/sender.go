package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/michaeladamstrickland/convexa-backend/pkg/db/models"
	pkgerrors "github.com/michaeladamstrickland/convexa-backend/pkg/errors"
)

// Delivery request headers.
const (
	headerSignature = "X-Signature"
	headerTimestamp = "X-Timestamp"
	headerWebhookID = "X-Webhook-Id"
	headerEventType = "X-Event-Type"
)

const defaultRequestTimeout = 10 * time.Second

// Sender posts signed event bodies to subscriber endpoints.
type Sender struct {
	client *http.Client
}

// NewSender builds a sender with the given request timeout.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Sender{client: &http.Client{Timeout: timeout}}
}

type eventBody struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Send signs and posts one event to the subscription target. Any transport
// failure or non-2xx response is an error; the caller decides about retry.
func (s *Sender) Send(ctx context.Context, sub *models.WebhookSubscription, eventType string, payload json.RawMessage, jobID string) error {
	body, err := json.Marshal(eventBody{Event: eventType, Data: payload})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode delivery body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build delivery request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, Sign(sub.SigningSecret, body))
	req.Header.Set(headerTimestamp, strconv.FormatInt(time.Now().UnixMilli(), 10))
	req.Header.Set(headerWebhookID, jobID)
	req.Header.Set(headerEventType, eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDelivery, err, "post delivery")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pkgerrors.New(pkgerrors.CodeDelivery, fmt.Sprintf("subscriber responded %d", resp.StatusCode))
	}
	return nil
}
