package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway implements Gateway on top of Stripe Connect (Express accounts,
// manual-capture PaymentIntents and separate transfers).
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a gateway bound to one secret key.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) CreateConnectedAccount(ctx context.Context, in AccountInput) (*Account, error) {
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String(in.Country),
		Email:        stripe.String(in.Email),
		BusinessType: stripe.String(in.BusinessType),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.AddMetadata("partner_id", in.PartnerID)
	params.SetIdempotencyKey("connect-account:" + in.PartnerID)

	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return nil, fmt.Errorf("create connected account: %w", err)
	}
	log.Printf("✅ Stripe connected account %s created for partner %s", acct.ID, in.PartnerID)
	return toAccount(acct), nil
}

func (g *StripeGateway) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := g.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve account %s: %w", accountID, err)
	}
	return toAccount(acct), nil
}

func (g *StripeGateway) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (*Link, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return nil, fmt.Errorf("create account link: %w", err)
	}
	return &Link{URL: link.URL, ExpiresAt: time.Unix(link.ExpiresAt, 0).UTC()}, nil
}

func (g *StripeGateway) CreateDashboardLink(ctx context.Context, accountID string) (*Link, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx

	link, err := g.api.LoginLinks.New(params)
	if err != nil {
		return nil, fmt.Errorf("create login link: %w", err)
	}
	return &Link{URL: link.URL}, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(in.AmountCents),
		Currency:      stripe.String(in.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		TransferGroup: stripe.String(in.TransferGroup),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", intentID, err)
	}
	return toPaymentIntent(pi), nil
}

func (g *StripeGateway) CapturePaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Capture(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("capture payment intent %s: %w", intentID, err)
	}
	return toPaymentIntent(pi), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID, reason, idempotencyKey string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	if reason != "" {
		params.CancellationReason = stripe.String(reason)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("cancel payment intent %s: %w", intentID, err)
	}
	return toPaymentIntent(pi), nil
}

func (g *StripeGateway) CreateTransfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(in.AmountCents),
		Currency:      stripe.String(in.Currency),
		Destination:   stripe.String(in.Destination),
		TransferGroup: stripe.String(in.TransferGroup),
	}
	if in.SourceTransaction != "" {
		params.SourceTransaction = stripe.String(in.SourceTransaction)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)

	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("create transfer to %s: %w", in.Destination, err)
	}

	out := toTransfer(tr)
	if out.Destination == "" {
		out.Destination = in.Destination
	}
	return &out, nil
}

func (g *StripeGateway) ListTransfers(ctx context.Context, transferGroup string) ([]Transfer, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(transferGroup)}
	params.Context = ctx

	var out []Transfer
	iter := g.api.Transfers.List(params)
	for iter.Next() {
		tr := iter.Transfer()
		if tr.Reversed {
			continue
		}
		out = append(out, toTransfer(tr))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list transfers for %s: %w", transferGroup, err)
	}
	return out, nil
}

func toTransfer(tr *stripe.Transfer) Transfer {
	out := Transfer{
		ID:            tr.ID,
		AmountCents:   tr.Amount,
		Currency:      string(tr.Currency),
		TransferGroup: tr.TransferGroup,
	}
	if tr.Destination != nil {
		out.Destination = tr.Destination.ID
	}
	return out
}

func (g *StripeGateway) ParseWebhookEvent(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: EventType(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(evt.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("decode account event %s: %w", evt.ID, err)
		}
		out.Account = toAccount(&acct)
	case EventPaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent event %s: %w", evt.ID, err)
		}
		out.PaymentIntent = toPaymentIntent(&pi)
	}
	return out, nil
}

func toAccount(acct *stripe.Account) *Account {
	out := &Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		out.RequirementsDue = append([]string(nil), acct.Requirements.CurrentlyDue...)
	}
	return out
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	return out
}
