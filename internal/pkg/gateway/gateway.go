// Package gateway wraps the card-payment gateway's synchronous API behind
// a small client interface so the payment services stay testable without
// network access. The asynchronous side (webhooks) is handled separately
// by internal/pkg/webhook.
package gateway

import "context"

// Intent is a created gateway payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Status       string
}

// Refund is a created gateway refund.
type Refund struct {
	ID     string
	Amount int64
	Status string
}

// Account is the gateway view of a contractor payout account.
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	DisabledReason   string
}

// CreateIntentInput carries everything needed to create a payment intent.
// Metadata travels to the gateway and returns on the confirmation webhook;
// the orchestrator uses it to tie intents back to ledger records.
type CreateIntentInput struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Client is the synchronous gateway surface used by the orchestrator and
// the connect service.
type Client interface {
	CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*Intent, error)
	CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (*Refund, error)
	CreateConnectAccount(ctx context.Context, email string) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateLoginLink(ctx context.Context, accountID string) (string, error)
}
