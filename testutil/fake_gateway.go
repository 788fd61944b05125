package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"luxe-escrow-server/payments"
)

// ErrMockGateway is a generic gateway failure for the *Func hooks.
var ErrMockGateway = errors.New("gateway error")

// FakeGateway is an in-memory payments.Gateway. Like the real processor, a repeated
// idempotency key returns the first result instead of acting again.
type FakeGateway struct {
	mu        sync.Mutex
	seq       int
	accounts  map[string]*payments.Account
	byPartner map[string]string
	intents   map[string]*payments.PaymentIntent
	transfers []payments.Transfer
	idem      map[string]interface{}

	Captures int
	Cancels  int

	// Hooks run before the call and fail it when they return an error.
	CreatePaymentIntentFunc  func(in payments.PaymentIntentInput) error
	CapturePaymentIntentFunc func(intentID string) error
	CancelPaymentIntentFunc  func(intentID string) error
	CreateTransferFunc       func(in payments.TransferInput) error
	ListTransfersFunc        func(transferGroup string) error
	ParseWebhookEventFunc    func(payload []byte, signature string) (*payments.Event, error)
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		accounts:  make(map[string]*payments.Account),
		byPartner: make(map[string]string),
		intents:   make(map[string]*payments.PaymentIntent),
		idem:      make(map[string]interface{}),
	}
}

func (g *FakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%04d", prefix, g.seq)
}

// PutAccount seeds or replaces a connected account.
func (g *FakeGateway) PutAccount(a payments.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[a.ID] = &a
}

// Authorize simulates the customer confirming the payment so it can be captured.
func (g *FakeGateway) Authorize(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pi, ok := g.intents[intentID]; ok {
		pi.Status = payments.IntentRequiresCapture
		pi.LatestChargeID = "ch_" + intentID
	}
}

// SetIntentStatus forces an intent into status, e.g. to simulate an expired hold.
func (g *FakeGateway) SetIntentStatus(intentID string, status payments.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pi, ok := g.intents[intentID]; ok {
		pi.Status = status
	}
}

// Transfers returns every transfer created so far.
func (g *FakeGateway) Transfers() []payments.Transfer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payments.Transfer(nil), g.transfers...)
}

// Intent returns a copy of the stored intent.
func (g *FakeGateway) Intent(intentID string) (payments.PaymentIntent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[intentID]
	if !ok {
		return payments.PaymentIntent{}, false
	}
	return *pi, true
}

func (g *FakeGateway) CreateConnectedAccount(ctx context.Context, in payments.AccountInput) (*payments.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byPartner[in.PartnerID]; ok {
		acct := *g.accounts[id]
		return &acct, nil
	}
	acct := &payments.Account{
		ID:              g.nextID("acct"),
		RequirementsDue: []string{"external_account", "tos_acceptance.date"},
	}
	g.accounts[acct.ID] = acct
	g.byPartner[in.PartnerID] = acct.ID
	out := *acct
	return &out, nil
}

func (g *FakeGateway) GetAccount(ctx context.Context, accountID string) (*payments.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	acct, ok := g.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("no such account %s: %w", accountID, ErrMockGateway)
	}
	out := *acct
	return &out, nil
}

func (g *FakeGateway) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (*payments.Link, error) {
	if _, err := g.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return &payments.Link{
		URL:       "https://connect.stripe.test/setup/" + accountID + "?return=" + returnURL,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}, nil
}

func (g *FakeGateway) CreateDashboardLink(ctx context.Context, accountID string) (*payments.Link, error) {
	if _, err := g.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return &payments.Link{URL: "https://connect.stripe.test/express/" + accountID}, nil
}

func (g *FakeGateway) CreatePaymentIntent(ctx context.Context, in payments.PaymentIntentInput) (*payments.PaymentIntent, error) {
	if g.CreatePaymentIntentFunc != nil {
		if err := g.CreatePaymentIntentFunc(in); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.idem[in.IdempotencyKey].(*payments.PaymentIntent); ok {
		out := *prev
		return &out, nil
	}
	id := g.nextID("pi")
	pi := &payments.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       payments.IntentRequiresPaymentMethod,
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Metadata:     in.Metadata,
	}
	g.intents[id] = pi
	if in.IdempotencyKey != "" {
		g.idem[in.IdempotencyKey] = pi
	}
	out := *pi
	return &out, nil
}

func (g *FakeGateway) GetPaymentIntent(ctx context.Context, intentID string) (*payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s: %w", intentID, ErrMockGateway)
	}
	out := *pi
	return &out, nil
}

func (g *FakeGateway) CapturePaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*payments.PaymentIntent, error) {
	if g.CapturePaymentIntentFunc != nil {
		if err := g.CapturePaymentIntentFunc(intentID); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.idem[idempotencyKey].(payments.PaymentIntent); ok {
		return &prev, nil
	}
	pi, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s: %w", intentID, ErrMockGateway)
	}
	if pi.Status != payments.IntentRequiresCapture {
		return nil, fmt.Errorf("payment intent %s has status %s: %w", intentID, pi.Status, ErrMockGateway)
	}
	pi.Status = payments.IntentSucceeded
	g.Captures++
	out := *pi
	g.idem[idempotencyKey] = out
	return &out, nil
}

func (g *FakeGateway) CancelPaymentIntent(ctx context.Context, intentID, reason, idempotencyKey string) (*payments.PaymentIntent, error) {
	if g.CancelPaymentIntentFunc != nil {
		if err := g.CancelPaymentIntentFunc(intentID); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.idem[idempotencyKey].(payments.PaymentIntent); ok {
		return &prev, nil
	}
	pi, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s: %w", intentID, ErrMockGateway)
	}
	if pi.Status == payments.IntentSucceeded || pi.Status == payments.IntentCanceled {
		return nil, fmt.Errorf("payment intent %s has status %s: %w", intentID, pi.Status, ErrMockGateway)
	}
	pi.Status = payments.IntentCanceled
	g.Cancels++
	out := *pi
	g.idem[idempotencyKey] = out
	return &out, nil
}

func (g *FakeGateway) CreateTransfer(ctx context.Context, in payments.TransferInput) (*payments.Transfer, error) {
	if g.CreateTransferFunc != nil {
		if err := g.CreateTransferFunc(in); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.idem[in.IdempotencyKey].(payments.Transfer); ok {
		return &prev, nil
	}
	t := payments.Transfer{
		ID:            g.nextID("tr"),
		AmountCents:   in.AmountCents,
		Currency:      in.Currency,
		Destination:   in.Destination,
		TransferGroup: in.TransferGroup,
	}
	g.transfers = append(g.transfers, t)
	if in.IdempotencyKey != "" {
		g.idem[in.IdempotencyKey] = t
	}
	return &t, nil
}

func (g *FakeGateway) ListTransfers(ctx context.Context, transferGroup string) ([]payments.Transfer, error) {
	if g.ListTransfersFunc != nil {
		if err := g.ListTransfersFunc(transferGroup); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []payments.Transfer
	for _, t := range g.transfers {
		if t.TransferGroup == transferGroup {
			out = append(out, t)
		}
	}
	return out, nil
}

func (g *FakeGateway) ParseWebhookEvent(payload []byte, signature string) (*payments.Event, error) {
	if g.ParseWebhookEventFunc != nil {
		return g.ParseWebhookEventFunc(payload, signature)
	}
	return nil, payments.ErrInvalidSignature
}

var _ payments.Gateway = (*FakeGateway)(nil)
