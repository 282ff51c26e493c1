// Package webhook processes the gateway's asynchronous event feed:
// signature verification, two-net deduplication, handler dispatch, and the
// acknowledge/fail contract that drives the gateway's redelivery loop.
package webhook

import (
	"context"
	"errors"
	"log"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"

	"github.com/LukasWeber/TradiePay/app/models"
	"github.com/LukasWeber/TradiePay/app/repository"
)

// ErrSignatureVerificationFailed means the payload could not be
// authenticated. This is terminal: the gateway does not redeliver on a
// signature rejection, so it is reserved strictly for authenticity
// failures.
var ErrSignatureVerificationFailed = errors.New("webhook: signature verification failed")

// Outcome classifies a processed delivery for the HTTP layer.
type Outcome int

const (
	// OutcomeProcessed means a handler ran to completion.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate means the event was already processed; nothing ran.
	OutcomeDuplicate
	// OutcomeIgnored means no handler is registered for the event type.
	OutcomeIgnored
)

// Handler processes one verified, deduplicated event. Handlers must be
// idempotent: a redelivery after a mid-handler failure re-runs them from
// the top.
type Handler interface {
	Handle(ctx context.Context, event *stripe.Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *stripe.Event) error

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event *stripe.Event) error {
	return f(ctx, event)
}

// DedupWindow is the bounded fast-path seen-set in front of the durable
// store. Lookups that error are treated as misses; the durable store stays
// authoritative.
type DedupWindow interface {
	Seen(ctx context.Context, eventID string) bool
	Remember(ctx context.Context, eventID string)
}

// Processor verifies, deduplicates and dispatches gateway events.
type Processor struct {
	repo     repository.WebhookEventRepository
	window   DedupWindow
	secret   string
	handlers map[string]Handler
}

// NewProcessor creates a processor with an empty handler table.
func NewProcessor(repo repository.WebhookEventRepository, window DedupWindow, signingSecret string) *Processor {
	return &Processor{
		repo:     repo,
		window:   window,
		secret:   signingSecret,
		handlers: make(map[string]Handler),
	}
}

// Register installs the handler for an event type. Adding support for a
// new event type is exactly one Register call.
func (p *Processor) Register(eventType string, h Handler) {
	p.handlers[eventType] = h
}

// Process runs the full pipeline for one delivery. The returned error is
// non-nil only for signature failures and handler/storage errors; the HTTP
// layer maps those to 400 and 500 respectively so the gateway knows
// whether to redeliver.
func (p *Processor) Process(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	event, err := stripewebhook.ConstructEvent(payload, signatureHeader, p.secret)
	if err != nil {
		// Nothing is recorded for an unauthenticated payload, not even a
		// dedup entry.
		return 0, ErrSignatureVerificationFailed
	}

	if p.window != nil && p.window.Seen(ctx, event.ID) {
		return OutcomeDuplicate, nil
	}

	created, stored, err := p.repo.CreateIfNotExists(&models.WebhookEvent{
		GatewayEventID: event.ID,
		EventType:      event.Type,
		PayloadJSON:    string(payload),
		SignatureValid: true,
	})
	if err != nil {
		return 0, err
	}
	if !created && stored.Succeeded() {
		p.remember(ctx, event.ID)
		return OutcomeDuplicate, nil
	}
	// A stored event that never finished (or whose handler errored) is a
	// redelivery after failure: the handler runs again.

	handler, ok := p.handlers[event.Type]
	if !ok {
		// Unmapped types are acknowledged, never treated as errors.
		if err := p.repo.MarkProcessed(stored.ID, ""); err != nil {
			return 0, err
		}
		p.remember(ctx, event.ID)
		return OutcomeIgnored, nil
	}

	if err := handler.Handle(ctx, &event); err != nil {
		log.Printf("webhook %s (%s) handler failed: %v", event.ID, event.Type, err)
		if markErr := p.repo.MarkProcessed(stored.ID, err.Error()); markErr != nil {
			log.Printf("webhook %s: recording handler error failed: %v", event.ID, markErr)
		}
		// Propagate so the HTTP layer responds 500 and the gateway
		// redelivers; redelivery is the recovery path.
		return 0, err
	}

	if err := p.repo.MarkProcessed(stored.ID, ""); err != nil {
		return 0, err
	}
	p.remember(ctx, event.ID)
	return OutcomeProcessed, nil
}

func (p *Processor) remember(ctx context.Context, eventID string) {
	if p.window != nil {
		p.window.Remember(ctx, eventID)
	}
}

// Sweeper periodically trims the durable event table and expires lapsed
// memberships. One ticker covers both housekeeping jobs.
type Sweeper struct {
	repo      repository.WebhookEventRepository
	expire    func(ctx context.Context) (int64, error)
	interval  time.Duration
	retention time.Duration
}

// NewSweeper creates the background sweeper. expire may be nil when
// membership expiry is handled elsewhere.
func NewSweeper(repo repository.WebhookEventRepository, expire func(ctx context.Context) (int64, error), interval, retention time.Duration) *Sweeper {
	return &Sweeper{repo: repo, expire: expire, interval: interval, retention: retention}
}

// Run blocks until the context is cancelled. Call it from a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	if n, err := s.repo.DeleteProcessedBefore(cutoff); err != nil {
		log.Printf("webhook sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("webhook sweep removed %d processed events", n)
	}

	if s.expire != nil {
		if n, err := s.expire(ctx); err != nil {
			log.Printf("membership expiry sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("membership expiry sweep transitioned %d records", n)
		}
	}
}
