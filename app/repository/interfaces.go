package repository

import (
	"time"

	"github.com/LukasWeber/TradiePay/app/models"
)

// PaymentStats aggregates a user's ledger activity for the stats endpoint.
type PaymentStats struct {
	TotalPayments  int64 `json:"total_payments"`
	TotalSpent     int64 `json:"total_spent"`
	TotalEarned    int64 `json:"total_earned"`
	TotalRefunded  int64 `json:"total_refunded"`
	PendingCount   int64 `json:"pending_count"`
	CompletedCount int64 `json:"completed_count"`
	RefundedCount  int64 `json:"refunded_count"`
}

// JobPaymentListFilter narrows history queries.
type JobPaymentListFilter struct {
	UserID uint
	Status string
	Offset int
	Limit  int
}

// JobPaymentRepository defines the ledger's database operations. Stage
// mutation goes exclusively through the conditional primitives below so
// that concurrent writers can never both succeed.
type JobPaymentRepository interface {
	Create(p *models.JobPayment) error
	GetByID(id uint) (*models.JobPayment, error)
	GetByPublicID(publicID string) (*models.JobPayment, error)
	GetByIntentID(intentID string) (*models.JobPayment, error)
	// SetStepIntent stores the active gateway intent id for a capture step.
	SetStepIntent(id uint, step, intentID string) error
	// AdvanceStage applies "from -> to" only if the record is still at
	// "from", adding capturedDelta to the captured total in the same
	// statement. Returns whether the transition was applied.
	AdvanceStage(id uint, from, to string, capturedDelta int64) (bool, error)
	// ApplyRefund atomically checks the refundable balance, accumulates
	// the refunded total, recomputes the stage and appends the history
	// row. Returns false when the balance check lost against a concurrent
	// writer.
	ApplyRefund(id uint, refund *models.PaymentRefund) (bool, error)
	RecordFailure(id uint, code, message string) error
	List(filter JobPaymentListFilter) ([]models.JobPayment, int64, error)
	StatsByUser(userID uint) (*PaymentStats, error)
}

// MembershipRepository defines membership persistence. The single-active-
// record guarantee rests on the (user_id, active_key) unique index plus the
// conditional UPDATE in UpgradeActive.
type MembershipRepository interface {
	Create(m *models.MembershipRecord) error
	GetActiveByUser(userID uint) (*models.MembershipRecord, error)
	GetBySubscriptionID(subscriptionID string) (*models.MembershipRecord, error)
	// UpgradeActive rewrites the user's active record in place. Returns
	// false when the user has no active record.
	UpgradeActive(userID uint, planID, period, subscriptionID string, renewalDate time.Time) (bool, error)
	ExtendRenewal(subscriptionID string, periodEnd time.Time) (bool, error)
	// Reactivate reopens an expired record when a renewal invoice lands
	// behind the expiry sweep. The unique active index rejects it if the
	// user meanwhile started a new membership.
	Reactivate(id uint, renewalDate time.Time) (bool, error)
	FlagRenewalFailure(subscriptionID string, at time.Time) (bool, error)
	Cancel(subscriptionID string, at time.Time) (bool, error)
	// ExpireLapsed moves every record whose anchor passed to expired and
	// frees its active slot. Returns the number of rows transitioned.
	ExpireLapsed(now time.Time) (int64, error)
	ListByUser(userID uint, status string, offset, limit int) ([]models.MembershipRecord, int64, error)
}

// WebhookEventRepository defines the durable dedup store.
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless one with the same gateway
	// event id is already stored; either way the stored row is returned.
	CreateIfNotExists(e *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	// DeleteProcessedBefore sweeps successfully processed events older
	// than the cutoff so the table stays bounded.
	DeleteProcessedBefore(cutoff time.Time) (int64, error)
}

// ConnectAccountRepository defines contractor payout account persistence.
type ConnectAccountRepository interface {
	Create(a *models.ConnectAccount) error
	GetByContractorID(contractorID uint) (*models.ConnectAccount, error)
	GetByGatewayAccountID(gatewayAccountID string) (*models.ConnectAccount, error)
	UpdateStatus(id uint, status string) error
}

// UserRepository defines the auth-support lookups.
type UserRepository interface {
	Create(u *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
}
