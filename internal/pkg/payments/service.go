// Package payments implements the staged payment orchestrator: it computes
// the capture split for a job, guards every stage operation against the
// ledger's transition table, issues gateway calls, and applies webhook
// confirmations through atomic conditional updates.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/LukasWeber/TradiePay/app/models"
	"github.com/LukasWeber/TradiePay/app/repository"
	"github.com/LukasWeber/TradiePay/internal/pkg/gateway"
)

var (
	// ErrNotFound means the referenced job payment does not exist.
	ErrNotFound = errors.New("payments: job payment not found")
	// ErrNotOwner means the caller is not the record's customer.
	ErrNotOwner = errors.New("payments: caller does not own this payment")
	// ErrInvalidStateTransition means a stage or balance guard refused the
	// operation. The ledger is untouched and the call is safe to retry
	// once the record reaches the required stage.
	ErrInvalidStateTransition = errors.New("payments: invalid state transition")
	// ErrValidation means the input itself was unusable.
	ErrValidation = errors.New("payments: invalid input")
)

// Service is the staged payment orchestrator.
type Service struct {
	repo repository.JobPaymentRepository
	gw   gateway.Client
}

// NewService creates an orchestrator over a ledger repository and a
// gateway client.
func NewService(repo repository.JobPaymentRepository, gw gateway.Client) *Service {
	return &Service{repo: repo, gw: gw}
}

// CreateInput is the input for a new job payment record.
type CreateInput struct {
	JobRequestID    uint
	CustomerID      uint
	ContractorID    uint
	BidID           uint
	TotalAmount     int64
	PreStartBilling bool
}

// CreateJobPaymentRecord creates the ledger record for an accepted bid at
// stage pending. No gateway call happens here.
func (s *Service) CreateJobPaymentRecord(in CreateInput) (*models.JobPayment, error) {
	if in.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	if in.CustomerID == 0 || in.ContractorID == 0 || in.BidID == 0 || in.JobRequestID == 0 {
		return nil, fmt.Errorf("%w: job, bid, customer and contractor references are required", ErrValidation)
	}

	deposit, preStart, completion := models.SplitJobAmounts(in.TotalAmount, in.PreStartBilling)
	p := &models.JobPayment{
		PublicID:         uuid.NewString(),
		JobRequestID:     in.JobRequestID,
		CustomerID:       in.CustomerID,
		ContractorID:     in.ContractorID,
		BidID:            in.BidID,
		TotalAmount:      in.TotalAmount,
		DepositAmount:    deposit,
		PreStartAmount:   preStart,
		CompletionAmount: completion,
		PreStartBilling:  in.PreStartBilling,
		Stage:            models.StagePending,
	}
	if err := s.repo.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// StagePaymentResult is returned by every client-initiated stage payment.
// The stage itself only advances on the matching webhook confirmation.
type StagePaymentResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Step         string `json:"step"`
}

// ProcessJobDepositPayment initiates the deposit capture for a pending
// record owned by the caller.
func (s *Service) ProcessJobDepositPayment(ctx context.Context, publicID string, callerID uint) (*StagePaymentResult, error) {
	return s.initiateStep(ctx, publicID, callerID, models.StepDeposit, models.StagePending)
}

// ProcessJobPreStartPayment initiates the pre-start capture. Only records
// created with pre-start billing have this step.
func (s *Service) ProcessJobPreStartPayment(ctx context.Context, publicID string, callerID uint) (*StagePaymentResult, error) {
	p, err := s.loadOwned(publicID, callerID)
	if err != nil {
		return nil, err
	}
	if !p.PreStartBilling {
		return nil, fmt.Errorf("%w: record has no pre-start step", ErrInvalidStateTransition)
	}
	return s.initiateStepOn(ctx, p, models.StepPreStart, models.StageDepositPaid)
}

// ProcessJobCompletionPayment initiates the completion capture. The
// required from-stage is fixed by the record's billing path.
func (s *Service) ProcessJobCompletionPayment(ctx context.Context, publicID string, callerID uint) (*StagePaymentResult, error) {
	p, err := s.loadOwned(publicID, callerID)
	if err != nil {
		return nil, err
	}
	return s.initiateStepOn(ctx, p, models.StepCompletion, p.CompletionFromStage())
}

func (s *Service) initiateStep(ctx context.Context, publicID string, callerID uint, step, requiredStage string) (*StagePaymentResult, error) {
	p, err := s.loadOwned(publicID, callerID)
	if err != nil {
		return nil, err
	}
	return s.initiateStepOn(ctx, p, step, requiredStage)
}

// initiateStepOn runs the shared guard-then-charge sequence. Every guard
// fires before the gateway call, so a refused operation has no side
// effects at all.
func (s *Service) initiateStepOn(ctx context.Context, p *models.JobPayment, step, requiredStage string) (*StagePaymentResult, error) {
	if p.Stage != requiredStage {
		return nil, fmt.Errorf("%w: %s payment requires stage %q, record is at %q",
			ErrInvalidStateTransition, step, requiredStage, p.Stage)
	}

	amount := p.StepAmount(step)
	intent, err := s.gw.CreatePaymentIntent(ctx, gateway.CreateIntentInput{
		Amount:      amount,
		Description: fmt.Sprintf("job %d %s payment", p.JobRequestID, step),
		Metadata: map[string]string{
			"job_payment_id": p.PublicID,
			"step":           step,
		},
	})
	if err != nil {
		// Gateway failures pass through verbatim; the ledger is unchanged
		// and the caller may retry.
		return nil, err
	}

	if err := s.repo.SetStepIntent(p.ID, step, intent.ID); err != nil {
		return nil, err
	}

	return &StagePaymentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Step:         step,
	}, nil
}

// ProcessJobRefundPayment issues a gateway refund against one of the
// record's intents and appends it to the refund history. The stage is
// recomputed from the cumulative refunded amount.
func (s *Service) ProcessJobRefundPayment(ctx context.Context, publicID string, callerID uint, gatewayIntentID string, amount int64, reason string) (*models.JobPayment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrValidation)
	}

	p, err := s.loadOwned(publicID, callerID)
	if err != nil {
		return nil, err
	}
	if _, ok := p.StepForIntent(gatewayIntentID); !ok {
		return nil, fmt.Errorf("%w: intent %q does not belong to this payment", ErrValidation, gatewayIntentID)
	}
	if !models.IsRefundableStage(p.Stage) {
		return nil, fmt.Errorf("%w: stage %q holds no captured funds", ErrInvalidStateTransition, p.Stage)
	}
	if p.RefundableAmount() < amount {
		return nil, fmt.Errorf("%w: refund %d exceeds refundable balance %d",
			ErrInvalidStateTransition, amount, p.RefundableAmount())
	}

	refund, err := s.gw.CreateRefund(ctx, gatewayIntentID, amount, reason)
	if err != nil {
		return nil, err
	}

	applied, err := s.repo.ApplyRefund(p.ID, &models.PaymentRefund{
		Amount:          amount,
		Reason:          reason,
		GatewayRefundID: refund.ID,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent refund consumed the balance between our read and
		// the conditional write. The gateway refund already went out, so
		// this needs an operator; surface it loudly.
		log.Printf("refund %s for payment %s applied at gateway but lost the ledger race", refund.ID, p.PublicID)
		return nil, fmt.Errorf("%w: refundable balance changed concurrently", ErrInvalidStateTransition)
	}

	return s.repo.GetByID(p.ID)
}

// ApplyIntentSucceeded advances the stage for a confirmed intent. Unknown
// intents and already-advanced records are silent no-ops; redelivered
// confirmations must never fail.
func (s *Service) ApplyIntentSucceeded(ctx context.Context, intentID string) (bool, error) {
	_ = ctx
	p, err := s.repo.GetByIntentID(intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	step, ok := p.StepForIntent(intentID)
	if !ok {
		return false, nil
	}

	var from, to string
	switch step {
	case models.StepDeposit:
		from, to = models.StagePending, models.StageDepositPaid
	case models.StepPreStart:
		from, to = models.StageDepositPaid, models.StagePreStartPaid
	case models.StepCompletion:
		from, to = p.CompletionFromStage(), models.StageCompleted
	}

	applied, err := s.repo.AdvanceStage(p.ID, from, to, p.StepAmount(step))
	if err != nil {
		return false, err
	}
	if applied {
		log.Printf("payment %s advanced %s -> %s (intent %s)", p.PublicID, from, to, intentID)
	}
	return applied, nil
}

// ApplyIntentFailed records the gateway's failure marker on the record.
// The stage stays put; the customer retries from the UI.
func (s *Service) ApplyIntentFailed(ctx context.Context, intentID, code, message string) error {
	_ = ctx
	p, err := s.repo.GetByIntentID(intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.repo.RecordFailure(p.ID, code, message)
}

// GetForUser loads a record the caller participates in (as customer or
// contractor).
func (s *Service) GetForUser(publicID string, callerID uint) (*models.JobPayment, error) {
	p, err := s.repo.GetByPublicID(publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.CustomerID != callerID && p.ContractorID != callerID {
		return nil, ErrNotOwner
	}
	return p, nil
}

func (s *Service) loadOwned(publicID string, callerID uint) (*models.JobPayment, error) {
	p, err := s.repo.GetByPublicID(publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.CustomerID != callerID {
		return nil, ErrNotOwner
	}
	return p, nil
}
