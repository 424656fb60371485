package payment_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-payments/internal/payment"
)

const webhookSecret = "whsec_test"

func webhookSig(body string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedEvent(orderID string) string {
	return `{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_Y","order_id":"order_X","status":"captured","notes":{"orderId":"` + orderID + `","userId":"u1"}}}}}`
}

func newWebhook(t *testing.T, f *fixture) (payment.Webhook, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return payment.Webhook{
		Verifier:  payment.NewVerifier(webhookSecret),
		Settler:   f.settler,
		Replay:    client,
		ReplayTTL: time.Hour,
	}, mr
}

func postWebhook(t *testing.T, wh payment.Webhook, body, sig, eventID string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
	if sig != "" {
		req.Header.Set(payment.HeaderWebhookSignature, sig)
	}
	if eventID != "" {
		req.Header.Set(payment.HeaderWebhookEventID, eventID)
	}
	rec := httptest.NewRecorder()
	wh.Handle(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestWebhookSettlesCapturedPayment(t *testing.T) {
	f := newFixture()
	f.putUnpaid("ORD1", "u1", 10)
	wh, _ := newWebhook(t, f)
	body := capturedEvent("ORD1")

	rec, out := postWebhook(t, wh, body, webhookSig(body), "evt_1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])

	o, err := f.store.Get(t.Context(), "ORD1")
	require.NoError(t, err)
	require.True(t, o.IsPaid())
	require.Equal(t, "pay_Y", o.PaymentResult.ID)
	require.Equal(t, payment.SourceWebhook, f.store.Events()[0].Source)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	f.putUnpaid("ORD1", "u1", 10)
	wh, _ := newWebhook(t, f)
	body := capturedEvent("ORD1")

	rec, out := postWebhook(t, wh, body, webhookSig(body+"x"), "evt_1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_SIGNATURE", errorCode(t, out))

	rec, out = postWebhook(t, wh, body, "", "evt_1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "MISSING_VERIFICATION_DATA", errorCode(t, out))
	require.Zero(t, f.store.writes())
}

func TestWebhookReplayIsAcknowledged(t *testing.T) {
	f := newFixture()
	f.putUnpaid("ORD1", "u1", 10)
	wh, mr := newWebhook(t, f)
	body := capturedEvent("ORD1")

	rec, _ := postWebhook(t, wh, body, webhookSig(body), "evt_1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, mr.Exists("wh:razorpay:evt_1"))

	rec, out := postWebhook(t, wh, body, webhookSig(body), "evt_1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["duplicate"])
	require.Equal(t, 1, f.store.writes())
}

func TestWebhookReleasesReplayKeyOnSettlementFailure(t *testing.T) {
	f := newFixture()
	f.putUnpaid("ORD1", "u1", 10)
	f.store.failWith = errStorageDown
	wh, mr := newWebhook(t, f)
	body := capturedEvent("ORD1")

	rec, out := postWebhook(t, wh, body, webhookSig(body), "evt_2")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "SETTLEMENT_FAILED", errorCode(t, out))
	require.False(t, mr.Exists("wh:razorpay:evt_2"), "provider retry must be processed")

	f.store.failWith = nil
	rec, _ = postWebhook(t, wh, body, webhookSig(body), "evt_2")
	require.Equal(t, http.StatusOK, rec.Code)
	o, err := f.store.Get(t.Context(), "ORD1")
	require.NoError(t, err)
	require.True(t, o.IsPaid())
}

func TestWebhookOrderPaidUsesOrderNotes(t *testing.T) {
	f := newFixture()
	f.putUnpaid("ORD7", "u1", 10)
	wh, _ := newWebhook(t, f)
	body := `{"event":"order.paid","payload":{"payment":{"entity":{"id":"pay_Z","order_id":"order_Q","notes":[]}},"order":{"entity":{"id":"order_Q","status":"paid","notes":{"orderId":"ORD7"}}}}}`

	rec, _ := postWebhook(t, wh, body, webhookSig(body), "")
	require.Equal(t, http.StatusOK, rec.Code)
	o, err := f.store.Get(t.Context(), "ORD7")
	require.NoError(t, err)
	require.True(t, o.IsPaid())
	require.Equal(t, "pay_Z", o.PaymentResult.ID)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture()
	wh, _ := newWebhook(t, f)
	body := `{"event":"payment.failed","payload":{}}`

	rec, out := postWebhook(t, wh, body, webhookSig(body), "evt_3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["ignored"])

	body = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_Y","order_id":"order_X","notes":[]}}}}`
	rec, out = postWebhook(t, wh, body, webhookSig(body), "evt_4")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["ignored"])
	require.Zero(t, f.store.writes())
}

func TestWebhookNotConfigured(t *testing.T) {
	rec, out := postWebhook(t, payment.Webhook{}, `{}`, "sig", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "PAYMENT_NOT_CONFIGURED", errorCode(t, out))
}
