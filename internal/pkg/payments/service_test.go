package payments_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/LukasWeber/TradiePay/app/models"
	"github.com/LukasWeber/TradiePay/app/repository"
	"github.com/LukasWeber/TradiePay/internal/pkg/gateway"
	"github.com/LukasWeber/TradiePay/internal/pkg/payments"
)

// fakeLedger is an in-memory JobPaymentRepository with the same conditional
// write semantics as the MySQL implementation.
type fakeLedger struct {
	mu      sync.Mutex
	records map[uint]*models.JobPayment
	nextID  uint
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[uint]*models.JobPayment)}
}

func (f *fakeLedger) Create(p *models.JobPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.records[p.ID] = &cp
	return nil
}

func (f *fakeLedger) GetByID(id uint) (*models.JobPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLedger) GetByPublicID(publicID string) (*models.JobPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.records {
		if p.PublicID == publicID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) GetByIntentID(intentID string) (*models.JobPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.records {
		if _, ok := p.StepForIntent(intentID); ok {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) SetStepIntent(id uint, step, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	switch step {
	case models.StepDeposit:
		p.DepositIntentID = intentID
	case models.StepPreStart:
		p.PreStartIntentID = intentID
	case models.StepCompletion:
		p.CompletionIntentID = intentID
	}
	return nil
}

func (f *fakeLedger) AdvanceStage(id uint, from, to string, capturedDelta int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if p.Stage != from {
		return false, nil
	}
	p.Stage = to
	p.CapturedAmount += capturedDelta
	return true, nil
}

func (f *fakeLedger) ApplyRefund(id uint, refund *models.PaymentRefund) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if p.CapturedAmount-p.RefundedAmount < refund.Amount {
		return false, nil
	}
	p.RefundedAmount += refund.Amount
	if p.RefundedAmount == p.CapturedAmount {
		p.Stage = models.StageRefunded
	} else {
		p.Stage = models.StagePartiallyRefunded
	}
	refund.JobPaymentID = id
	p.Refunds = append(p.Refunds, *refund)
	return true, nil
}

func (f *fakeLedger) RecordFailure(id uint, code, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.FailureCode = code
	p.FailureMessage = message
	return nil
}

func (f *fakeLedger) List(filter repository.JobPaymentListFilter) ([]models.JobPayment, int64, error) {
	return nil, 0, nil
}

func (f *fakeLedger) StatsByUser(userID uint) (*repository.PaymentStats, error) {
	return &repository.PaymentStats{}, nil
}

// fakeGateway counts calls so the tests can prove guards fire before any
// network activity.
type fakeGateway struct {
	mu          sync.Mutex
	intentCalls int
	refundCalls int
	intentErr   error
	lastIntent  gateway.CreateIntentInput
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, in gateway.CreateIntentInput) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentCalls++
	g.lastIntent = in
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return &gateway.Intent{
		ID:           fmt.Sprintf("pi_test_%d", g.intentCalls),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", g.intentCalls),
		Amount:       in.Amount,
		Status:       "requires_payment_method",
	}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	return &gateway.Refund{ID: fmt.Sprintf("re_test_%d", g.refundCalls), Amount: amount, Status: "succeeded"}, nil
}

func (g *fakeGateway) CreateConnectAccount(ctx context.Context, email string) (*gateway.Account, error) {
	return nil, errors.New("not supported")
}

func (g *fakeGateway) GetAccount(ctx context.Context, accountID string) (*gateway.Account, error) {
	return nil, errors.New("not supported")
}

func (g *fakeGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "", errors.New("not supported")
}

func (g *fakeGateway) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	return "", errors.New("not supported")
}

func newTestService() (*payments.Service, *fakeLedger, *fakeGateway) {
	ledger := newFakeLedger()
	gw := &fakeGateway{}
	return payments.NewService(ledger, gw), ledger, gw
}

func createRecord(t *testing.T, svc *payments.Service, total int64, preStart bool) *models.JobPayment {
	t.Helper()
	p, err := svc.CreateJobPaymentRecord(payments.CreateInput{
		JobRequestID:    10,
		CustomerID:      1,
		ContractorID:    2,
		BidID:           5,
		TotalAmount:     total,
		PreStartBilling: preStart,
	})
	if err != nil {
		t.Fatalf("CreateJobPaymentRecord: %v", err)
	}
	return p
}

func TestCreateJobPaymentRecord(t *testing.T) {
	svc, _, _ := newTestService()

	p := createRecord(t, svc, 100000, false)
	if p.Stage != models.StagePending {
		t.Fatalf("new record stage = %q, want pending", p.Stage)
	}
	if p.DepositAmount != 15000 || p.PreStartAmount != 0 || p.CompletionAmount != 85000 {
		t.Fatalf("unexpected split: %d/%d/%d", p.DepositAmount, p.PreStartAmount, p.CompletionAmount)
	}
	if p.PublicID == "" {
		t.Fatal("expected a public id")
	}
}

func TestCreateJobPaymentRecordValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateJobPaymentRecord(payments.CreateInput{
		JobRequestID: 1, CustomerID: 1, ContractorID: 2, BidID: 3, TotalAmount: 0,
	})
	if !errors.Is(err, payments.ErrValidation) {
		t.Fatalf("zero total: got %v, want ErrValidation", err)
	}

	_, err = svc.CreateJobPaymentRecord(payments.CreateInput{
		JobRequestID: 1, CustomerID: 0, ContractorID: 2, BidID: 3, TotalAmount: 1000,
	})
	if !errors.Is(err, payments.ErrValidation) {
		t.Fatalf("missing customer: got %v, want ErrValidation", err)
	}
}

func TestDepositPaymentCreatesIntentWithoutAdvancing(t *testing.T) {
	svc, ledger, gw := newTestService()
	p := createRecord(t, svc, 100000, false)

	result, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("ProcessJobDepositPayment: %v", err)
	}
	if result.Amount != 15000 || result.Step != models.StepDeposit {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ClientSecret == "" {
		t.Fatal("expected a client secret for the frontend confirmation")
	}
	if gw.intentCalls != 1 {
		t.Fatalf("gateway intent calls = %d, want 1", gw.intentCalls)
	}
	if gw.lastIntent.Metadata["job_payment_id"] != p.PublicID {
		t.Fatalf("intent metadata must reference the record, got %v", gw.lastIntent.Metadata)
	}

	stored, _ := ledger.GetByID(p.ID)
	if stored.Stage != models.StagePending {
		t.Fatalf("stage advanced before the confirmation webhook: %q", stored.Stage)
	}
	if stored.DepositIntentID != result.IntentID {
		t.Fatalf("intent id not stored: %q", stored.DepositIntentID)
	}
}

func TestStageGuardFiresBeforeGatewayCall(t *testing.T) {
	svc, _, gw := newTestService()
	p := createRecord(t, svc, 100000, false)

	// Completion requires deposit_paid; the record is still pending.
	_, err := svc.ProcessJobCompletionPayment(context.Background(), p.PublicID, 1)
	if !errors.Is(err, payments.ErrInvalidStateTransition) {
		t.Fatalf("got %v, want ErrInvalidStateTransition", err)
	}
	if gw.intentCalls != 0 {
		t.Fatalf("refused operation reached the gateway: %d calls", gw.intentCalls)
	}
}

func TestPreStartRefusedOnTwoStepRecord(t *testing.T) {
	svc, ledger, gw := newTestService()
	p := createRecord(t, svc, 100000, false)
	mustAdvance(t, ledger, p.ID, models.StagePending, models.StageDepositPaid, p.DepositAmount)

	_, err := svc.ProcessJobPreStartPayment(context.Background(), p.PublicID, 1)
	if !errors.Is(err, payments.ErrInvalidStateTransition) {
		t.Fatalf("got %v, want ErrInvalidStateTransition", err)
	}
	if gw.intentCalls != 0 {
		t.Fatalf("refused operation reached the gateway: %d calls", gw.intentCalls)
	}
}

func TestCompletionPathDependsOnBillingMode(t *testing.T) {
	// Two-step record: completion is available straight from deposit_paid.
	svc, ledger, _ := newTestService()
	p := createRecord(t, svc, 100000, false)
	mustAdvance(t, ledger, p.ID, models.StagePending, models.StageDepositPaid, p.DepositAmount)

	result, err := svc.ProcessJobCompletionPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("two-step completion: %v", err)
	}
	if result.Amount != 85000 {
		t.Fatalf("two-step completion amount = %d, want 85000", result.Amount)
	}

	// Three-step record: completion is refused until pre_start_paid.
	svc, ledger, _ = newTestService()
	p = createRecord(t, svc, 100000, true)
	mustAdvance(t, ledger, p.ID, models.StagePending, models.StageDepositPaid, p.DepositAmount)

	if _, err := svc.ProcessJobCompletionPayment(context.Background(), p.PublicID, 1); !errors.Is(err, payments.ErrInvalidStateTransition) {
		t.Fatalf("three-step completion from deposit_paid: got %v, want ErrInvalidStateTransition", err)
	}

	mustAdvance(t, ledger, p.ID, models.StageDepositPaid, models.StagePreStartPaid, p.PreStartAmount)
	result, err = svc.ProcessJobCompletionPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("three-step completion: %v", err)
	}
	if result.Amount != 50000 {
		t.Fatalf("three-step completion amount = %d, want 50000", result.Amount)
	}
}

func TestOwnershipGuards(t *testing.T) {
	svc, _, _ := newTestService()
	p := createRecord(t, svc, 100000, false)

	if _, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 99); !errors.Is(err, payments.ErrNotOwner) {
		t.Fatalf("foreign caller: got %v, want ErrNotOwner", err)
	}
	if _, err := svc.ProcessJobDepositPayment(context.Background(), "missing", 1); !errors.Is(err, payments.ErrNotFound) {
		t.Fatalf("unknown record: got %v, want ErrNotFound", err)
	}

	// The contractor may read the record but never initiate payments.
	if _, err := svc.GetForUser(p.PublicID, 2); err != nil {
		t.Fatalf("contractor read: %v", err)
	}
	if _, err := svc.GetForUser(p.PublicID, 99); !errors.Is(err, payments.ErrNotOwner) {
		t.Fatalf("stranger read: got %v, want ErrNotOwner", err)
	}
}

func TestApplyIntentSucceededAdvancesOnce(t *testing.T) {
	svc, ledger, _ := newTestService()
	p := createRecord(t, svc, 100000, false)

	result, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	applied, err := svc.ApplyIntentSucceeded(context.Background(), result.IntentID)
	if err != nil || !applied {
		t.Fatalf("first confirmation: applied=%v err=%v", applied, err)
	}

	stored, _ := ledger.GetByID(p.ID)
	if stored.Stage != models.StageDepositPaid {
		t.Fatalf("stage = %q, want deposit_paid", stored.Stage)
	}
	if stored.CapturedAmount != 15000 {
		t.Fatalf("captured = %d, want 15000", stored.CapturedAmount)
	}

	// Redelivered confirmation is a silent no-op.
	applied, err = svc.ApplyIntentSucceeded(context.Background(), result.IntentID)
	if err != nil {
		t.Fatalf("redelivery must not error: %v", err)
	}
	if applied {
		t.Fatal("redelivery must not advance again")
	}
	stored, _ = ledger.GetByID(p.ID)
	if stored.CapturedAmount != 15000 {
		t.Fatalf("captured after redelivery = %d, want 15000", stored.CapturedAmount)
	}
}

func TestApplyIntentSucceededUnknownIntent(t *testing.T) {
	svc, _, _ := newTestService()

	applied, err := svc.ApplyIntentSucceeded(context.Background(), "pi_unknown")
	if err != nil {
		t.Fatalf("unknown intent must not error: %v", err)
	}
	if applied {
		t.Fatal("unknown intent must not apply")
	}
}

func TestApplyIntentSucceededConcurrent(t *testing.T) {
	svc, ledger, _ := newTestService()
	p := createRecord(t, svc, 100000, false)

	result, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	appliedCount := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := svc.ApplyIntentSucceeded(context.Background(), result.IntentID)
			if err != nil {
				t.Errorf("concurrent confirmation: %v", err)
			}
			appliedCount <- applied
		}()
	}
	wg.Wait()
	close(appliedCount)

	wins := 0
	for applied := range appliedCount {
		if applied {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("%d confirmations applied, want exactly 1", wins)
	}

	stored, _ := ledger.GetByID(p.ID)
	if stored.CapturedAmount != 15000 {
		t.Fatalf("captured = %d after concurrent delivery, want 15000", stored.CapturedAmount)
	}
}

func TestApplyIntentFailedRecordsMarker(t *testing.T) {
	svc, ledger, _ := newTestService()
	p := createRecord(t, svc, 100000, false)

	result, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := svc.ApplyIntentFailed(context.Background(), result.IntentID, "card_declined", "Your card was declined."); err != nil {
		t.Fatalf("ApplyIntentFailed: %v", err)
	}

	stored, _ := ledger.GetByID(p.ID)
	if stored.FailureCode != "card_declined" {
		t.Fatalf("failure code = %q", stored.FailureCode)
	}
	if stored.Stage != models.StagePending {
		t.Fatalf("failure must not move the stage, got %q", stored.Stage)
	}

	// Failures for intents we never issued are ignored.
	if err := svc.ApplyIntentFailed(context.Background(), "pi_unknown", "x", "y"); err != nil {
		t.Fatalf("unknown intent failure must not error: %v", err)
	}
}

func TestRefundGuards(t *testing.T) {
	svc, ledger, gw := newTestService()
	p := createRecord(t, svc, 100000, false)

	result, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Nothing captured yet: stage guard refuses.
	if _, err := svc.ProcessJobRefundPayment(context.Background(), p.PublicID, 1, result.IntentID, 1000, "test"); !errors.Is(err, payments.ErrInvalidStateTransition) {
		t.Fatalf("refund at pending: got %v, want ErrInvalidStateTransition", err)
	}

	mustAdvance(t, ledger, p.ID, models.StagePending, models.StageDepositPaid, p.DepositAmount)

	if _, err := svc.ProcessJobRefundPayment(context.Background(), p.PublicID, 1, "pi_foreign", 1000, "test"); !errors.Is(err, payments.ErrValidation) {
		t.Fatalf("foreign intent: got %v, want ErrValidation", err)
	}
	if _, err := svc.ProcessJobRefundPayment(context.Background(), p.PublicID, 1, result.IntentID, 0, "test"); !errors.Is(err, payments.ErrValidation) {
		t.Fatalf("zero amount: got %v, want ErrValidation", err)
	}
	if _, err := svc.ProcessJobRefundPayment(context.Background(), p.PublicID, 1, result.IntentID, 15001, "test"); !errors.Is(err, payments.ErrInvalidStateTransition) {
		t.Fatalf("over-refund: got %v, want ErrInvalidStateTransition", err)
	}
	if gw.refundCalls != 0 {
		t.Fatalf("refused refunds reached the gateway: %d calls", gw.refundCalls)
	}
}

func TestRefundPartialThenFull(t *testing.T) {
	svc, ledger, gw := newTestService()
	p := createRecord(t, svc, 100000, false)

	result, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	mustAdvance(t, ledger, p.ID, models.StagePending, models.StageDepositPaid, p.DepositAmount)

	refunded, err := svc.ProcessJobRefundPayment(context.Background(), p.PublicID, 1, result.IntentID, 5000, "partial")
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if refunded.Stage != models.StagePartiallyRefunded {
		t.Fatalf("stage after partial refund = %q", refunded.Stage)
	}
	if refunded.RefundedAmount != 5000 {
		t.Fatalf("refunded = %d, want 5000", refunded.RefundedAmount)
	}

	refunded, err = svc.ProcessJobRefundPayment(context.Background(), p.PublicID, 1, result.IntentID, 10000, "rest")
	if err != nil {
		t.Fatalf("final refund: %v", err)
	}
	if refunded.Stage != models.StageRefunded {
		t.Fatalf("stage after full refund = %q", refunded.Stage)
	}
	if len(refunded.Refunds) != 2 {
		t.Fatalf("refund history rows = %d, want 2", len(refunded.Refunds))
	}
	if gw.refundCalls != 2 {
		t.Fatalf("gateway refund calls = %d, want 2", gw.refundCalls)
	}
}

func TestGatewayErrorLeavesLedgerUntouched(t *testing.T) {
	svc, ledger, gw := newTestService()
	p := createRecord(t, svc, 100000, false)
	gw.intentErr = errors.New("gateway unavailable")

	if _, err := svc.ProcessJobDepositPayment(context.Background(), p.PublicID, 1); err == nil {
		t.Fatal("expected the gateway error to surface")
	}

	stored, _ := ledger.GetByID(p.ID)
	if stored.DepositIntentID != "" || stored.Stage != models.StagePending {
		t.Fatalf("ledger changed on gateway failure: %+v", stored)
	}
}

func mustAdvance(t *testing.T, ledger *fakeLedger, id uint, from, to string, delta int64) {
	t.Helper()
	applied, err := ledger.AdvanceStage(id, from, to, delta)
	if err != nil || !applied {
		t.Fatalf("advance %s -> %s: applied=%v err=%v", from, to, applied, err)
	}
}
