package repository

import (
	"time"

	"github.com/LukasWeber/TradiePay/app/models"
	"gorm.io/gorm"
)

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a GORM-backed membership repository.
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Create(m *models.MembershipRecord) error {
	if m.Status == "" {
		m.Status = models.MembershipStatusActive
	}
	if m.Status == models.MembershipStatusActive && m.ActiveKey == nil {
		one := uint8(1)
		m.ActiveKey = &one
	}
	return r.db.Create(m).Error
}

func (r *membershipRepository) GetActiveByUser(userID uint) (*models.MembershipRecord, error) {
	var m models.MembershipRecord
	err := r.db.Where("user_id = ? AND status = ?", userID, models.MembershipStatusActive).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepository) GetBySubscriptionID(subscriptionID string) (*models.MembershipRecord, error) {
	var m models.MembershipRecord
	err := r.db.Where("gateway_subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpgradeActive rewrites the user's active record in one UPDATE. There is
// no moment with zero or two active records: either the row is rewritten
// in place or nothing happened.
func (r *membershipRepository) UpgradeActive(userID uint, planID, period, subscriptionID string, renewalDate time.Time) (bool, error) {
	tx := r.db.Model(&models.MembershipRecord{}).
		Where("user_id = ? AND status = ?", userID, models.MembershipStatusActive).
		Updates(map[string]interface{}{
			"plan_id":                 planID,
			"billing_period":          period,
			"gateway_subscription_id": subscriptionID,
			"renewal_date":            renewalDate,
			"renewal_failed_at":       nil,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *membershipRepository) ExtendRenewal(subscriptionID string, periodEnd time.Time) (bool, error) {
	tx := r.db.Model(&models.MembershipRecord{}).
		Where("gateway_subscription_id = ? AND status = ? AND renewal_date < ?",
			subscriptionID, models.MembershipStatusActive, periodEnd).
		Updates(map[string]interface{}{
			"renewal_date":      periodEnd,
			"renewal_failed_at": nil,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *membershipRepository) Reactivate(id uint, renewalDate time.Time) (bool, error) {
	tx := r.db.Model(&models.MembershipRecord{}).
		Where("id = ? AND status = ?", id, models.MembershipStatusExpired).
		Updates(map[string]interface{}{
			"status":            models.MembershipStatusActive,
			"active_key":        uint8(1),
			"renewal_date":      renewalDate,
			"renewal_failed_at": nil,
			"cancelled_at":      nil,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *membershipRepository) FlagRenewalFailure(subscriptionID string, at time.Time) (bool, error) {
	tx := r.db.Model(&models.MembershipRecord{}).
		Where("gateway_subscription_id = ? AND status = ?", subscriptionID, models.MembershipStatusActive).
		Update("renewal_failed_at", at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *membershipRepository) Cancel(subscriptionID string, at time.Time) (bool, error) {
	tx := r.db.Model(&models.MembershipRecord{}).
		Where("gateway_subscription_id = ? AND status = ?", subscriptionID, models.MembershipStatusActive).
		Updates(map[string]interface{}{
			"status":       models.MembershipStatusCancelled,
			"cancelled_at": at,
			"active_key":   nil,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *membershipRepository) ExpireLapsed(now time.Time) (int64, error) {
	tx := r.db.Model(&models.MembershipRecord{}).
		Where("status IN ? AND renewal_date <= ?",
			[]string{models.MembershipStatusActive, models.MembershipStatusCancelled}, now).
		Updates(map[string]interface{}{
			"status":     models.MembershipStatusExpired,
			"active_key": nil,
		})
	return tx.RowsAffected, tx.Error
}

func (r *membershipRepository) ListByUser(userID uint, status string, offset, limit int) ([]models.MembershipRecord, int64, error) {
	q := r.db.Model(&models.MembershipRecord{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.MembershipRecord
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error
	return items, total, err
}
