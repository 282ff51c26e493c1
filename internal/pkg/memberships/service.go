// Package memberships reconciles membership records against checkout and
// invoice events. Its one hard guarantee: a user has exactly one active
// record at any moment, however events arrive.
package memberships

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/LukasWeber/TradiePay/app/models"
	"github.com/LukasWeber/TradiePay/app/repository"
)

// ErrNotFound means no membership record matches the reference.
var ErrNotFound = errors.New("memberships: record not found")

// ErrValidation means the event carried unusable membership data.
var ErrValidation = errors.New("memberships: invalid input")

// Service is the subscription reconciler.
type Service struct {
	repo repository.MembershipRepository
	now  func() time.Time
}

// NewService creates a reconciler over a membership repository.
func NewService(repo repository.MembershipRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CheckoutInput is the normalized result of a completed checkout session.
type CheckoutInput struct {
	UserID                uint
	PlanID                string
	BillingPeriod         string
	GatewaySubscriptionID string
	AutoRenew             bool
}

// ActivateFromCheckout converges the user's membership state after a
// completed checkout: no active record means a new membership, an existing
// one means an in-place upgrade. Re-running the same checkout is a no-op,
// so redelivered events are safe.
func (s *Service) ActivateFromCheckout(ctx context.Context, in CheckoutInput) (*models.MembershipRecord, error) {
	_ = ctx
	if in.UserID == 0 || strings.TrimSpace(in.PlanID) == "" {
		return nil, fmt.Errorf("%w: user and plan are required", ErrValidation)
	}

	period := models.NormalizeBillingPeriod(in.BillingPeriod)
	subscriptionID := ""
	if in.AutoRenew {
		subscriptionID = strings.TrimSpace(in.GatewaySubscriptionID)
	}

	existing, err := s.repo.GetActiveByUser(in.UserID)
	switch {
	case err == nil:
		return s.upgrade(in.UserID, existing, in.PlanID, period, subscriptionID)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createNew(in.UserID, in.PlanID, period, subscriptionID)
	default:
		return nil, err
	}
}

func (s *Service) createNew(userID uint, planID, period, subscriptionID string) (*models.MembershipRecord, error) {
	m := &models.MembershipRecord{
		UserID:                userID,
		PlanID:                planID,
		BillingPeriod:         period,
		GatewaySubscriptionID: subscriptionID,
		Status:                models.MembershipStatusActive,
		RenewalDate:           models.AddBillingPeriod(s.now(), period),
	}
	if err := s.repo.Create(m); err != nil {
		// The (user_id, active_key) unique index turns a create/create
		// race into a duplicate error; the loser converges by upgrading
		// the row the winner created.
		existing, lookupErr := s.repo.GetActiveByUser(userID)
		if lookupErr != nil {
			return nil, err
		}
		return s.upgrade(userID, existing, planID, period, subscriptionID)
	}
	log.Printf("membership created for user %d on plan %s (%s)", userID, planID, period)
	return m, nil
}

func (s *Service) upgrade(userID uint, existing *models.MembershipRecord, planID, period, subscriptionID string) (*models.MembershipRecord, error) {
	if existing.PlanID == planID &&
		existing.BillingPeriod == period &&
		existing.GatewaySubscriptionID == subscriptionID {
		// Redelivered checkout for the state we already hold.
		return existing, nil
	}

	// The billing anchor survives an upgrade within the same period;
	// switching period re-anchors from now.
	renewalDate := existing.RenewalDate
	if existing.BillingPeriod != period {
		renewalDate = models.AddBillingPeriod(s.now(), period)
	}

	applied, err := s.repo.UpgradeActive(userID, planID, period, subscriptionID, renewalDate)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The active record vanished between lookup and update (expiry or
		// cancellation race); fall back to creating a fresh one.
		return s.createNew(userID, planID, period, subscriptionID)
	}
	log.Printf("membership upgraded for user %d to plan %s (%s)", userID, planID, period)
	return s.repo.GetActiveByUser(userID)
}

// ExtendRenewal advances the renewal anchor after a paid renewal invoice
// and clears any failure flag. A stale or redelivered invoice whose period
// end does not move the anchor forward is a no-op. An invoice that arrives
// after the expiry sweep already closed the record reinstates it: the
// member paid for that period.
func (s *Service) ExtendRenewal(ctx context.Context, subscriptionID string, periodEnd time.Time) error {
	_ = ctx
	if strings.TrimSpace(subscriptionID) == "" {
		return nil
	}
	applied, err := s.repo.ExtendRenewal(subscriptionID, periodEnd)
	if err != nil || applied {
		return err
	}
	if !periodEnd.After(s.now()) {
		return nil
	}

	m, err := s.repo.GetBySubscriptionID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if m.Status != models.MembershipStatusExpired {
		return nil
	}
	// A newer membership holds the active slot; the late invoice for the
	// superseded subscription loses.
	if _, err := s.repo.GetActiveByUser(m.UserID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// A checkout racing this reinstatement trips the unique active index;
	// the gateway redelivers and the retry finds the newer record above.
	reactivated, err := s.repo.Reactivate(m.ID, periodEnd)
	if err != nil {
		return err
	}
	if reactivated {
		log.Printf("membership %d reinstated for user %d after late renewal invoice", m.ID, m.UserID)
	}
	return nil
}

// FlagRenewalFailure marks the record after a failed renewal invoice.
// Access is not revoked; expiry handles a membership that never recovers.
func (s *Service) FlagRenewalFailure(ctx context.Context, subscriptionID string) error {
	_ = ctx
	if strings.TrimSpace(subscriptionID) == "" {
		return nil
	}
	_, err := s.repo.FlagRenewalFailure(subscriptionID, s.now())
	return err
}

// Cancel transitions the record to cancelled. Access persists until the
// renewal anchor; the expiry sweep finishes the job.
func (s *Service) Cancel(ctx context.Context, subscriptionID string) error {
	_ = ctx
	if strings.TrimSpace(subscriptionID) == "" {
		return nil
	}
	_, err := s.repo.Cancel(subscriptionID, s.now())
	return err
}

// UpdateInput carries plan/period changes from a subscription-updated
// event.
type UpdateInput struct {
	GatewaySubscriptionID string
	PlanID                string
	BillingPeriod         string
	CancelAtPeriodEnd     bool
	CurrentPeriodEnd      time.Time
}

// ApplyUpdate applies a gateway-side subscription change, always keeping
// access through the already-paid boundary.
func (s *Service) ApplyUpdate(ctx context.Context, in UpdateInput) error {
	if strings.TrimSpace(in.GatewaySubscriptionID) == "" {
		return nil
	}

	m, err := s.repo.GetBySubscriptionID(in.GatewaySubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Subscription we never saw a checkout for; nothing to update.
			return nil
		}
		return err
	}
	if m.Status != models.MembershipStatusActive {
		// Delayed update for a superseded or lapsed subscription; the
		// user's current record must not be touched.
		return nil
	}

	if in.CancelAtPeriodEnd {
		return s.Cancel(ctx, in.GatewaySubscriptionID)
	}

	planID := in.PlanID
	if planID == "" {
		planID = m.PlanID
	}
	period := m.BillingPeriod
	if in.BillingPeriod != "" {
		period = models.NormalizeBillingPeriod(in.BillingPeriod)
	}
	renewalDate := m.RenewalDate
	if !in.CurrentPeriodEnd.IsZero() {
		renewalDate = in.CurrentPeriodEnd
	}

	_, err = s.repo.UpgradeActive(m.UserID, planID, period, in.GatewaySubscriptionID, renewalDate)
	return err
}

// ExpireLapsed transitions every record whose anchor passed to expired.
func (s *Service) ExpireLapsed(ctx context.Context) (int64, error) {
	_ = ctx
	return s.repo.ExpireLapsed(s.now())
}

// GetActiveForUser returns the user's current membership, treating a
// past-anchor row as absent.
func (s *Service) GetActiveForUser(ctx context.Context, userID uint) (*models.MembershipRecord, error) {
	_ = ctx
	m, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !m.GrantsAccess(s.now()) {
		return nil, ErrNotFound
	}
	return m, nil
}
