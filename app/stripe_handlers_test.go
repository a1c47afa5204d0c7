package app

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testWebhookSecret = "whsec_test_secret"

func signWebhookPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookEnvelope(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      "evt_test",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal webhook envelope: %v", err)
	}
	return body
}

// swapReconciler installs a fake-backed reconciler for the duration of a test.
func swapReconciler(t *testing.T) (*fakeIdentity, *fakeProfiles) {
	t.Helper()
	r, identity, profiles, _ := newTestReconciler()
	prev := reconciler
	reconciler = r
	t.Cleanup(func() { reconciler = prev })
	return identity, profiles
}

func newWebhookRouter() *gin.Engine {
	router := gin.New()
	router.POST("/api/stripe/webhook", StripeWebhook)
	return router
}

func TestWebhookValidSignatureAppliesEvent(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	identity, profiles := swapReconciler(t)
	seedProfile(profiles, "user-1")

	body := webhookEnvelope(t, "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"user_id": "user-1"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, testWebhookSecret, time.Now()))
	resp := httptest.NewRecorder()
	newWebhookRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	if premium, _ := identity.premium("user-1"); !premium {
		t.Fatalf("expected entitlement applied through the webhook")
	}
}

func TestWebhookBadSignatureRejectedWithoutStateChange(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	identity, profiles := swapReconciler(t)
	seedProfile(profiles, "user-1")

	body := webhookEnvelope(t, "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"user_id": "user-1"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_wrong", time.Now()))
	resp := httptest.NewRecorder()
	newWebhookRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if identity.updates != 0 || profiles.applies != 0 {
		t.Fatalf("bad signature must produce zero state changes")
	}
	if profiles.byUser["user-1"].Premium {
		t.Fatalf("premium flipped despite invalid signature")
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	identity, profiles := swapReconciler(t)

	body := webhookEnvelope(t, "charge.refunded", map[string]any{"id": "ch_1"})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, testWebhookSecret, time.Now()))
	resp := httptest.NewRecorder()
	newWebhookRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload struct {
		Received bool `json:"received"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil || !payload.Received {
		t.Fatalf("expected received ack, body=%s", resp.Body.String())
	}
	if identity.updates != 0 || profiles.applies != 0 {
		t.Fatalf("unknown event must produce zero state changes")
	}
}

func TestWebhookMissingSignatureRejected(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	swapReconciler(t)

	body := webhookEnvelope(t, "checkout.session.completed", map[string]any{"id": "cs_1"})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	newWebhookRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
