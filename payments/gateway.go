// Package payments wraps the payment processor behind a small gateway interface so the
// escrow orchestration can be exercised without network access.
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails signature verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Gateway is the subset of the processor used by the escrow and onboarding flows.
// Every money-moving call takes an idempotency key; repeating a call with the same key
// returns the original object instead of acting twice.
type Gateway interface {
	CreateConnectedAccount(ctx context.Context, in AccountInput) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (*Link, error)
	CreateDashboardLink(ctx context.Context, accountID string) (*Link, error)

	CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID, reason, idempotencyKey string) (*PaymentIntent, error)

	CreateTransfer(ctx context.Context, in TransferInput) (*Transfer, error)
	// ListTransfers returns the live (non-reversed) transfers made for a transfer group.
	ListTransfers(ctx context.Context, transferGroup string) ([]Transfer, error)

	ParseWebhookEvent(payload []byte, signature string) (*Event, error)
}

type AccountInput struct {
	PartnerID    string
	Email        string
	Country      string
	BusinessType string
}

type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	RequirementsDue  []string
}

type Link struct {
	URL       string
	ExpiresAt time.Time
}

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

type PaymentIntentInput struct {
	AmountCents    int64
	Currency       string
	TransferGroup  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntent struct {
	ID             string
	ClientSecret   string
	Status         IntentStatus
	AmountCents    int64
	Currency       string
	LatestChargeID string
	Metadata       map[string]string
}

type TransferInput struct {
	AmountCents       int64
	Currency          string
	Destination       string
	TransferGroup     string
	SourceTransaction string
	Metadata          map[string]string
	IdempotencyKey    string
}

type Transfer struct {
	ID            string `json:"id"`
	AmountCents   int64  `json:"amount"`
	Currency      string `json:"currency"`
	Destination   string `json:"destination"`
	TransferGroup string `json:"transfer_group,omitempty"`
}

type EventType string

const (
	EventAccountUpdated        EventType = "account.updated"
	EventPaymentIntentCanceled EventType = "payment_intent.canceled"
)

// Event is a verified webhook event; exactly one of the payload pointers is set for
// the event types the server handles.
type Event struct {
	ID            string
	Type          EventType
	Account       *Account
	PaymentIntent *PaymentIntent
}
