package models

import "time"

// WebhookEvent stores every accepted gateway webhook delivery with the
// uniqueness constraint the dedup check relies on. Rows are swept after a
// retention horizon to keep the table bounded.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	GatewayEventID  string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"not null;default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Succeeded reports whether the event already completed a handler run
// without error. Only such events are acknowledged as duplicates; a stored
// event whose handler failed (or never finished) is re-run on redelivery.
func (e *WebhookEvent) Succeeded() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
