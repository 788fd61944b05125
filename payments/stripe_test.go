package payments

import (
	"errors"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedPayload(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestParseWebhookEventAccountUpdated(t *testing.T) {
	g := NewStripeGateway("sk_test_unused", testWebhookSecret)
	body, header := signedPayload(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "account.updated",
		"data": {"object": {
			"id": "acct_123",
			"object": "account",
			"charges_enabled": true,
			"payouts_enabled": false,
			"details_submitted": true,
			"requirements": {"currently_due": ["external_account"]}
		}}
	}`)

	evt, err := g.ParseWebhookEvent(body, header)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if evt.Type != EventAccountUpdated {
		t.Fatalf("type = %s", evt.Type)
	}
	if evt.Account == nil || evt.Account.ID != "acct_123" {
		t.Fatalf("account = %+v", evt.Account)
	}
	if !evt.Account.ChargesEnabled || evt.Account.PayoutsEnabled || !evt.Account.DetailsSubmitted {
		t.Errorf("flags = %+v", evt.Account)
	}
	if len(evt.Account.RequirementsDue) != 1 || evt.Account.RequirementsDue[0] != "external_account" {
		t.Errorf("requirements = %v", evt.Account.RequirementsDue)
	}
}

func TestParseWebhookEventPaymentIntentCanceled(t *testing.T) {
	g := NewStripeGateway("sk_test_unused", testWebhookSecret)
	body, header := signedPayload(t, `{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.canceled",
		"data": {"object": {"id": "pi_123", "object": "payment_intent", "status": "canceled", "amount": 50000, "currency": "eur"}}
	}`)

	evt, err := g.ParseWebhookEvent(body, header)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if evt.PaymentIntent == nil || evt.PaymentIntent.ID != "pi_123" {
		t.Fatalf("payment intent = %+v", evt.PaymentIntent)
	}
	if evt.PaymentIntent.Status != IntentCanceled {
		t.Errorf("status = %s", evt.PaymentIntent.Status)
	}
}

func TestParseWebhookEventRejectsBadSignature(t *testing.T) {
	g := NewStripeGateway("sk_test_unused", testWebhookSecret)
	body, _ := signedPayload(t, `{"id":"evt_3","object":"event","type":"account.updated","data":{"object":{}}}`)

	_, err := g.ParseWebhookEvent(body, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestToTransfer(t *testing.T) {
	got := toTransfer(&stripe.Transfer{
		ID:            "tr_1",
		Amount:        42500,
		Currency:      stripe.CurrencyEUR,
		Destination:   &stripe.Account{ID: "acct_partner"},
		TransferGroup: "booking-1",
	})
	want := Transfer{ID: "tr_1", AmountCents: 42500, Currency: "eur", Destination: "acct_partner", TransferGroup: "booking-1"}
	if got != want {
		t.Errorf("toTransfer = %+v, want %+v", got, want)
	}
}
