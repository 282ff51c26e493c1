package repository

import (
	"errors"

	"github.com/LukasWeber/TradiePay/app/models"
	"gorm.io/gorm"
)

type jobPaymentRepository struct {
	db *gorm.DB
}

// NewJobPaymentRepository creates a GORM-backed job payment repository.
func NewJobPaymentRepository(db *gorm.DB) JobPaymentRepository {
	return &jobPaymentRepository{db: db}
}

func (r *jobPaymentRepository) Create(p *models.JobPayment) error {
	return r.db.Create(p).Error
}

func (r *jobPaymentRepository) GetByID(id uint) (*models.JobPayment, error) {
	var p models.JobPayment
	if err := r.db.Preload("Refunds").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *jobPaymentRepository) GetByPublicID(publicID string) (*models.JobPayment, error) {
	var p models.JobPayment
	if err := r.db.Preload("Refunds").Where("public_id = ?", publicID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *jobPaymentRepository) GetByIntentID(intentID string) (*models.JobPayment, error) {
	var p models.JobPayment
	err := r.db.
		Where("deposit_intent_id = ? OR pre_start_intent_id = ? OR completion_intent_id = ?", intentID, intentID, intentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *jobPaymentRepository) SetStepIntent(id uint, step, intentID string) error {
	var column string
	switch step {
	case models.StepDeposit:
		column = "deposit_intent_id"
	case models.StepPreStart:
		column = "pre_start_intent_id"
	case models.StepCompletion:
		column = "completion_intent_id"
	default:
		return errors.New("repository: unknown capture step " + step)
	}
	return r.db.Model(&models.JobPayment{}).Where("id = ?", id).Update(column, intentID).Error
}

// AdvanceStage is the single compare-and-set used for every forward stage
// move. The WHERE clause carries the expected stage, so two concurrent
// confirmations for the same record can never both succeed.
func (r *jobPaymentRepository) AdvanceStage(id uint, from, to string, capturedDelta int64) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, nil
	}
	tx := r.db.Model(&models.JobPayment{}).
		Where("id = ? AND stage = ?", id, from).
		Updates(map[string]interface{}{
			"stage":           to,
			"captured_amount": gorm.Expr("captured_amount + ?", capturedDelta),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *jobPaymentRepository) ApplyRefund(id uint, refund *models.PaymentRefund) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Accumulate only while the refundable balance still covers the
		// amount; a losing race leaves zero rows affected.
		res := tx.Model(&models.JobPayment{}).
			Where("id = ? AND captured_amount - refunded_amount >= ?", id, refund.Amount).
			Update("refunded_amount", gorm.Expr("refunded_amount + ?", refund.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var p models.JobPayment
		if err := tx.First(&p, id).Error; err != nil {
			return err
		}
		newStage := models.StagePartiallyRefunded
		if p.RefundedAmount >= p.CapturedAmount {
			newStage = models.StageRefunded
		}
		if err := tx.Model(&models.JobPayment{}).Where("id = ?", id).Update("stage", newStage).Error; err != nil {
			return err
		}

		refund.JobPaymentID = id
		if err := tx.Create(refund).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *jobPaymentRepository) RecordFailure(id uint, code, message string) error {
	return r.db.Model(&models.JobPayment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"failure_code":    code,
			"failure_message": message,
		}).Error
}

func (r *jobPaymentRepository) List(filter JobPaymentListFilter) ([]models.JobPayment, int64, error) {
	q := r.db.Model(&models.JobPayment{}).
		Where("customer_id = ? OR contractor_id = ?", filter.UserID, filter.UserID)
	if filter.Status != "" {
		q = q.Where("stage = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.JobPayment
	err := q.Preload("Refunds").
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&items).Error
	return items, total, err
}

func (r *jobPaymentRepository) StatsByUser(userID uint) (*PaymentStats, error) {
	var stats PaymentStats

	type row struct {
		Stage    string
		Count    int64
		Captured int64
		Refunded int64
	}

	var asCustomer []row
	err := r.db.Model(&models.JobPayment{}).
		Select("stage, COUNT(*) AS count, COALESCE(SUM(captured_amount),0) AS captured, COALESCE(SUM(refunded_amount),0) AS refunded").
		Where("customer_id = ?", userID).
		Group("stage").
		Scan(&asCustomer).Error
	if err != nil {
		return nil, err
	}
	for _, rw := range asCustomer {
		stats.TotalPayments += rw.Count
		stats.TotalSpent += rw.Captured - rw.Refunded
		stats.TotalRefunded += rw.Refunded
		switch rw.Stage {
		case models.StagePending:
			stats.PendingCount += rw.Count
		case models.StageCompleted:
			stats.CompletedCount += rw.Count
		case models.StageRefunded, models.StagePartiallyRefunded:
			stats.RefundedCount += rw.Count
		}
	}

	var earned int64
	err = r.db.Model(&models.JobPayment{}).
		Select("COALESCE(SUM(captured_amount - refunded_amount),0)").
		Where("contractor_id = ?", userID).
		Scan(&earned).Error
	if err != nil {
		return nil, err
	}
	stats.TotalEarned = earned

	return &stats, nil
}
