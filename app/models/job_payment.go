package models

import "time"

// Payment stages for a job payment record.
const (
	StagePending           = "pending"
	StageDepositPaid       = "deposit_paid"
	StagePreStartPaid      = "pre_start_paid"
	StageCompleted         = "completed"
	StagePartiallyRefunded = "partially_refunded"
	StageRefunded          = "refunded"
)

// Capture steps a payment intent can belong to.
const (
	StepDeposit    = "deposit"
	StepPreStart   = "pre_start"
	StepCompletion = "completion"
)

// StageTransitions enumerates every allowed stage transition once. All
// mutating operations consult this table; a transition that is not listed
// here must never be written to the database.
var StageTransitions = map[string][]string{
	StagePending:           {StageDepositPaid},
	StageDepositPaid:       {StagePreStartPaid, StageCompleted, StagePartiallyRefunded, StageRefunded},
	StagePreStartPaid:      {StageCompleted, StagePartiallyRefunded, StageRefunded},
	StageCompleted:         {StagePartiallyRefunded, StageRefunded},
	StagePartiallyRefunded: {StagePartiallyRefunded, StageRefunded},
}

// CanTransition reports whether moving a job payment from one stage to
// another is allowed by the transition table.
func CanTransition(from, to string) bool {
	for _, next := range StageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsRefundableStage reports whether a stage holds captured funds that a
// refund may be issued against.
func IsRefundableStage(stage string) bool {
	switch stage {
	case StageDepositPaid, StagePreStartPaid, StageCompleted, StagePartiallyRefunded:
		return true
	default:
		return false
	}
}

// JobPayment is the durable ledger record of one job's payment progress.
// One record exists per accepted bid; it is never deleted, refunds are
// appended as history rows.
type JobPayment struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	PublicID     string `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"`
	JobRequestID uint   `gorm:"not null;index" json:"job_request_id"`
	CustomerID   uint   `gorm:"not null;index" json:"customer_id"`
	ContractorID uint   `gorm:"not null;index" json:"contractor_id"`
	BidID        uint   `gorm:"not null;index" json:"bid_id"`

	// Amounts are integer minor currency units. DepositAmount is 15% of
	// TotalAmount rounded half up; the remaining amounts are exact
	// remainders so the split always sums to TotalAmount.
	TotalAmount      int64 `gorm:"not null" json:"total_amount"`
	DepositAmount    int64 `gorm:"not null" json:"deposit_amount"`
	PreStartAmount   int64 `gorm:"not null;default:0" json:"pre_start_amount"`
	CompletionAmount int64 `gorm:"not null" json:"completion_amount"`

	// PreStartBilling fixes the capture path at creation time: records
	// with it take the strict three-step path and completion is refused
	// before the pre-start capture; records without it go straight from
	// deposit to completion and refuse the pre-start operation.
	PreStartBilling bool `gorm:"not null;default:false" json:"pre_start_billing"`

	Stage string `gorm:"type:varchar(32);not null;default:'pending';index" json:"stage"`

	// At most one active gateway intent per step. Re-initiating a step
	// payment overwrites the stored id; the superseded intent is never
	// confirmed by us.
	DepositIntentID    string `gorm:"type:varchar(191);index" json:"deposit_intent_id,omitempty"`
	PreStartIntentID   string `gorm:"type:varchar(191);index" json:"pre_start_intent_id,omitempty"`
	CompletionIntentID string `gorm:"type:varchar(191);index" json:"completion_intent_id,omitempty"`

	CapturedAmount int64 `gorm:"not null;default:0" json:"captured_amount"`
	RefundedAmount int64 `gorm:"not null;default:0" json:"refunded_amount"`

	// Terminal failure marker from the last payment_intent.payment_failed
	// delivery. Informational for the caller-side UI only; a later
	// successful confirmation proceeds regardless.
	FailureCode    string `gorm:"type:varchar(100)" json:"failure_code,omitempty"`
	FailureMessage string `gorm:"type:varchar(500)" json:"failure_message,omitempty"`

	Refunds []PaymentRefund `gorm:"foreignKey:JobPaymentID" json:"refunds,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentRefund is one entry in a job payment's refund history.
type PaymentRefund struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	JobPaymentID    uint      `gorm:"not null;index" json:"job_payment_id"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Reason          string    `gorm:"type:varchar(500)" json:"reason"`
	GatewayRefundID string    `gorm:"type:varchar(191);not null" json:"gateway_refund_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SplitJobAmounts computes the capture split for a job total. The deposit
// is 15% rounded half up; with pre-start billing the pre-start capture is
// 35% rounded half up and completion is the exact remainder, otherwise
// completion is total minus deposit. No minor unit is ever lost.
func SplitJobAmounts(total int64, preStartBilling bool) (deposit, preStart, completion int64) {
	deposit = (total*15 + 50) / 100
	if preStartBilling {
		preStart = (total*35 + 50) / 100
		completion = total - deposit - preStart
		return deposit, preStart, completion
	}
	return deposit, 0, total - deposit
}

// StepAmount returns the capture amount for a given step.
func (p *JobPayment) StepAmount(step string) int64 {
	switch step {
	case StepDeposit:
		return p.DepositAmount
	case StepPreStart:
		return p.PreStartAmount
	case StepCompletion:
		return p.CompletionAmount
	default:
		return 0
	}
}

// StepForIntent resolves which capture step a gateway intent id belongs to.
func (p *JobPayment) StepForIntent(intentID string) (string, bool) {
	if intentID == "" {
		return "", false
	}
	switch intentID {
	case p.DepositIntentID:
		return StepDeposit, true
	case p.PreStartIntentID:
		return StepPreStart, true
	case p.CompletionIntentID:
		return StepCompletion, true
	default:
		return "", false
	}
}

// CompletionFromStage returns the stage a record must be in before the
// completion payment may be initiated, as fixed by its billing path.
func (p *JobPayment) CompletionFromStage() string {
	if p.PreStartBilling {
		return StagePreStartPaid
	}
	return StageDepositPaid
}

// RefundableAmount is the captured balance still available for refunds.
func (p *JobPayment) RefundableAmount() int64 {
	return p.CapturedAmount - p.RefundedAmount
}
