package models

import "time"

// Membership statuses.
const (
	MembershipStatusActive    = "active"
	MembershipStatusCancelled = "cancelled"
	MembershipStatusExpired   = "expired"
)

// Billing periods.
const (
	BillingPeriodMonthly = "monthly"
	BillingPeriodYearly  = "yearly"
)

// MembershipRecord is a user's membership state. At most one active record
// exists per user; upgrades mutate the active row in place instead of
// creating a second one.
type MembershipRecord struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        uint   `gorm:"not null;index;uniqueIndex:ux_membership_records_user_active,priority:1" json:"user_id"`
	PlanID        string `gorm:"type:varchar(100);not null" json:"plan_id"`
	BillingPeriod string `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_period"`

	// Empty for one-off purchases that simply lapse at the anchor.
	GatewaySubscriptionID string `gorm:"type:varchar(191);index" json:"gateway_subscription_id,omitempty"`

	Status string `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`

	// ActiveKey is 1 while the record is active and NULL otherwise, so the
	// composite unique index enforces at most one active row per user
	// without constraining historical rows.
	ActiveKey *uint8 `gorm:"uniqueIndex:ux_membership_records_user_active,priority:2" json:"-"`

	RenewalDate     time.Time  `gorm:"not null;index" json:"renewal_date"`
	RenewalFailedAt *time.Time `gorm:"type:timestamp;default:null" json:"renewal_failed_at,omitempty"`
	CancelledAt     *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AddBillingPeriod advances a renewal anchor by one billing period.
func AddBillingPeriod(t time.Time, period string) time.Time {
	if period == BillingPeriodYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// NormalizeBillingPeriod maps arbitrary period inputs (including gateway
// interval names) onto the two supported periods.
func NormalizeBillingPeriod(period string) string {
	switch period {
	case BillingPeriodYearly, "year", "annual":
		return BillingPeriodYearly
	default:
		return BillingPeriodMonthly
	}
}

// GrantsAccess reports whether the record still grants membership access at
// the given instant. Cancelled records keep access through the already-paid
// period boundary.
func (m *MembershipRecord) GrantsAccess(now time.Time) bool {
	switch m.Status {
	case MembershipStatusActive, MembershipStatusCancelled:
		return now.Before(m.RenewalDate)
	default:
		return false
	}
}
