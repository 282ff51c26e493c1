package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v74"

	"github.com/LukasWeber/TradiePay/internal/pkg/connect"
	"github.com/LukasWeber/TradiePay/internal/pkg/gateway"
	"github.com/LukasWeber/TradiePay/internal/pkg/memberships"
	"github.com/LukasWeber/TradiePay/internal/pkg/payments"
)

// Gateway event types this service reacts to.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventInvoicePaid              = "invoice.paid"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventAccountUpdated           = "account.updated"
)

// RegisterDefaultHandlers installs the full type-to-handler table.
func RegisterDefaultHandlers(p *Processor, pay *payments.Service, mem *memberships.Service, conn *connect.Service) {
	p.Register(EventCheckoutSessionCompleted, checkoutSessionCompleted(mem))
	p.Register(EventPaymentIntentSucceeded, paymentIntentSucceeded(pay))
	p.Register(EventPaymentIntentFailed, paymentIntentFailed(pay))
	p.Register(EventInvoicePaid, invoicePaid(mem))
	p.Register(EventInvoicePaymentFailed, invoicePaymentFailed(mem))
	p.Register(EventSubscriptionDeleted, subscriptionDeleted(mem))
	p.Register(EventSubscriptionUpdated, subscriptionUpdated(mem))
	p.Register(EventAccountUpdated, accountUpdated(conn))
}

func checkoutSessionCompleted(mem *memberships.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("parse checkout session: %w", err)
		}

		userID, err := resolveUserID(&sess)
		if err != nil {
			return err
		}

		subscriptionID := ""
		if sess.Subscription != nil {
			subscriptionID = sess.Subscription.ID
		}

		_, err = mem.ActivateFromCheckout(ctx, memberships.CheckoutInput{
			UserID:                userID,
			PlanID:                sess.Metadata["plan_id"],
			BillingPeriod:         sess.Metadata["billing_period"],
			GatewaySubscriptionID: subscriptionID,
			AutoRenew:             sess.Mode == stripe.CheckoutSessionModeSubscription,
		})
		return err
	})
}

func paymentIntentSucceeded(pay *payments.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("parse payment intent: %w", err)
		}
		// Intents that belong to no ledger record (e.g. one-off membership
		// purchases) and already-advanced records are silent no-ops.
		_, err := pay.ApplyIntentSucceeded(ctx, pi.ID)
		return err
	})
}

func paymentIntentFailed(pay *payments.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("parse payment intent: %w", err)
		}

		code, message := "payment_failed", "payment was not completed"
		if pi.LastPaymentError != nil {
			if pi.LastPaymentError.Code != "" {
				code = string(pi.LastPaymentError.Code)
			}
			if pi.LastPaymentError.Msg != "" {
				message = pi.LastPaymentError.Msg
			}
		}
		return pay.ApplyIntentFailed(ctx, pi.ID, code, message)
	})
}

func invoicePaid(mem *memberships.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("parse invoice: %w", err)
		}
		if inv.Subscription == nil {
			return nil
		}
		return mem.ExtendRenewal(ctx, inv.Subscription.ID, invoicePeriodEnd(&inv))
	})
}

func invoicePaymentFailed(mem *memberships.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("parse invoice: %w", err)
		}
		if inv.Subscription == nil {
			return nil
		}
		return mem.FlagRenewalFailure(ctx, inv.Subscription.ID)
	})
}

func subscriptionDeleted(mem *memberships.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("parse subscription: %w", err)
		}
		return mem.Cancel(ctx, sub.ID)
	})
}

func subscriptionUpdated(mem *memberships.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("parse subscription: %w", err)
		}

		in := memberships.UpdateInput{
			GatewaySubscriptionID: sub.ID,
			CancelAtPeriodEnd:     sub.CancelAtPeriodEnd,
		}
		if sub.CurrentPeriodEnd > 0 {
			in.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			price := sub.Items.Data[0].Price
			in.PlanID = price.ID
			if price.Recurring != nil {
				in.BillingPeriod = string(price.Recurring.Interval)
			}
		}
		return mem.ApplyUpdate(ctx, in)
	})
}

func accountUpdated(conn *connect.Service) Handler {
	return HandlerFunc(func(ctx context.Context, event *stripe.Event) error {
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return fmt.Errorf("parse account: %w", err)
		}

		remote := &gateway.Account{
			ID:               acct.ID,
			ChargesEnabled:   acct.ChargesEnabled,
			PayoutsEnabled:   acct.PayoutsEnabled,
			DetailsSubmitted: acct.DetailsSubmitted,
		}
		if acct.Requirements != nil {
			remote.DisabledReason = string(acct.Requirements.DisabledReason)
		}
		return conn.ApplyAccountUpdated(ctx, remote)
	})
}

func resolveUserID(sess *stripe.CheckoutSession) (uint, error) {
	raw := sess.Metadata["user_id"]
	if raw == "" {
		raw = sess.ClientReferenceID
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("checkout session %s carries no usable user reference", sess.ID)
	}
	return uint(id), nil
}

// invoicePeriodEnd picks the paid-through boundary: the line period end
// when present, the invoice period end otherwise.
func invoicePeriodEnd(inv *stripe.Invoice) time.Time {
	end := inv.PeriodEnd
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		end = inv.Lines.Data[0].Period.End
	}
	return time.Unix(end, 0)
}
