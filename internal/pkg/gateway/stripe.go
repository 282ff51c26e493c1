package gateway

import (
	"context"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/LukasWeber/TradiePay/internal/pkg/env"
)

// StripeClient implements Client against the Stripe API.
type StripeClient struct {
	api      *client.API
	currency string
}

// NewStripeClient creates a Stripe-backed gateway client.
func NewStripeClient(secretKey, currency string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	if currency == "" {
		currency = "usd"
	}
	return &StripeClient{api: api, currency: strings.ToLower(currency)}
}

// NewStripeClientFromEnv creates a Stripe client from environment config.
func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(
		strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		strings.TrimSpace(env.GetEnv("STRIPE_CURRENCY", "usd")),
	)
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*Intent, error) {
	currency := in.Currency
	if currency == "" {
		currency = c.currency
	}

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(in.Amount),
		Currency:    stripe.String(currency),
		Description: stripe.String(in.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Status:       string(pi.Status),
	}, nil
}

func (c *StripeClient) CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (*Refund, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
	}
	// Stripe only accepts its own reason enum; the free-text reason from
	// the caller rides along as metadata.
	params.AddMetadata("reason", reason)

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, err
	}
	return &Refund{ID: r.ID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func (c *StripeClient) CreateConnectAccount(ctx context.Context, email string) (*Account, error) {
	params := &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String(string(stripe.AccountTypeExpress)),
		Email:  stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}

	a, err := c.api.Accounts.New(params)
	if err != nil {
		return nil, err
	}
	return mapStripeAccount(a), nil
}

func (c *StripeClient) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	a, err := c.api.Accounts.GetByID(accountID, &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	return mapStripeAccount(a), nil
}

func (c *StripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	link, err := c.api.AccountLinks.New(&stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (c *StripeClient) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	link, err := c.api.LoginLinks.New(&stripe.LoginLinkParams{
		Params:  stripe.Params{Context: ctx},
		Account: stripe.String(accountID),
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func mapStripeAccount(a *stripe.Account) *Account {
	out := &Account{
		ID:               a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
	if a.Requirements != nil {
		out.DisabledReason = string(a.Requirements.DisabledReason)
	}
	return out
}
