package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-payments/internal/common"
	"github.com/noah-isme/toko-payments/internal/obs"
)

// Razorpay webhook headers and the events that settle an order.
const (
	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"

	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
)

// Webhook settles orders from provider callbacks.
type Webhook struct {
	Verifier  Verifier
	Settler   *Settler
	Replay    *redis.Client
	ReplayTTL time.Duration
	MaxBody   int64
}

type webhookEntity struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Notes   json.RawMessage `json:"notes"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// settleRequest extracts the local and provider identifiers. Notes are an
// object when set and an empty array otherwise.
func (e webhookEvent) settleRequest() (SettleRequest, bool) {
	var req SettleRequest
	var notes json.RawMessage
	if p := e.Payload.Payment; p != nil {
		req.ProviderPaymentID = p.Entity.ID
		req.ProviderOrderID = p.Entity.OrderID
		notes = p.Entity.Notes
	}
	if o := e.Payload.Order; o != nil {
		if req.ProviderOrderID == "" {
			req.ProviderOrderID = o.Entity.ID
		}
		if localOrderID(notes) == "" {
			notes = o.Entity.Notes
		}
	}
	req.OrderID = localOrderID(notes)
	req.Source = SourceWebhook
	return req, req.ProviderPaymentID != "" && req.OrderID != ""
}

func localOrderID(raw json.RawMessage) string {
	var notes map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &notes) != nil {
		return ""
	}
	id, _ := notes["orderId"].(string)
	return strings.TrimSpace(id)
}

// Handle verifies the body signature, drops replays and settles payment events.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	if h.Settler == nil || !h.Verifier.Configured() {
		common.WriteError(w, ErrConfiguration)
		return
	}
	limit := h.MaxBody
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if err := h.Verifier.VerifyBody(body, r.Header.Get(HeaderWebhookSignature)); err != nil {
		obs.IncCounter(obs.PaymentWebhookTotal, "unknown", "invalid_signature")
		logger.Warn().Str("event_id", r.Header.Get(HeaderWebhookEventID)).Msg("webhook_signature_rejected")
		common.WriteError(w, err)
		return
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Event == "" {
		obs.IncCounter(obs.PaymentWebhookTotal, "unknown", "invalid_payload")
		common.WriteError(w, ErrInvalidWebhook)
		return
	}
	eventLabel := ev.Event
	if ev.Event != EventPaymentCaptured && ev.Event != EventOrderPaid {
		obs.IncCounter(obs.PaymentWebhookTotal, "other", "ignored")
		common.JSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
		return
	}

	replayKey, fresh, err := h.claim(ctx, r.Header.Get(HeaderWebhookEventID), body)
	if err != nil {
		obs.IncCounter(obs.PaymentWebhookTotal, eventLabel, "error")
		logger.Error().Err(err).Msg("webhook_replay_store_failed")
		common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "unable to record webhook", nil)
		return
	}
	if !fresh {
		obs.IncCounter(obs.PaymentWebhookTotal, eventLabel, "duplicate")
		common.JSON(w, http.StatusOK, map[string]any{"success": true, "duplicate": true})
		return
	}

	req, ok := ev.settleRequest()
	if !ok {
		obs.IncCounter(obs.PaymentWebhookTotal, eventLabel, "unmatched")
		logger.Warn().Str("event", ev.Event).Str("provider_order_id", req.ProviderOrderID).Msg("webhook_without_local_order")
		common.JSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
		return
	}
	res, err := h.Settler.Settle(ctx, req)
	if err != nil {
		h.release(logger, replayKey)
		obs.IncCounter(obs.PaymentWebhookTotal, eventLabel, "error")
		common.WriteError(w, err)
		return
	}
	obs.IncCounter(obs.PaymentWebhookTotal, eventLabel, string(res.Outcome))
	common.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// claim records the delivery so retries of the same event are acknowledged
// without settling twice. Without a Redis client every delivery is fresh.
func (h Webhook) claim(ctx context.Context, eventID string, body []byte) (string, bool, error) {
	if h.Replay == nil {
		return "", true, nil
	}
	id := strings.TrimSpace(eventID)
	if id == "" {
		id = common.Sha256Hex(string(body))
	}
	key := "wh:razorpay:" + id
	ttl := h.ReplayTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	ok, err := h.Replay.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return "", false, err
	}
	return key, ok, nil
}

func (h Webhook) release(logger *zerolog.Logger, key string) {
	if h.Replay == nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Replay.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn().Err(err).Str("key", key).Msg("webhook_replay_release_failed")
	}
}
