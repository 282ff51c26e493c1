package repository

import (
	"time"

	"github.com/LukasWeber/TradiePay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a GORM-backed webhook event store.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists relies on the unique gateway_event_id index: the insert
// and the duplicate check are one atomic statement, so two concurrent
// deliveries of the same event cannot both create a row.
func (r *webhookEventRepository) CreateIfNotExists(e *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_event_id"}},
		DoNothing: true,
	}).Create(e)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("gateway_event_id = ?", e.GatewayEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}

func (r *webhookEventRepository) DeleteProcessedBefore(cutoff time.Time) (int64, error) {
	tx := r.db.
		Where("processed_at IS NOT NULL AND processing_error = '' AND created_at < ?", cutoff).
		Delete(&models.WebhookEvent{})
	return tx.RowsAffected, tx.Error
}
