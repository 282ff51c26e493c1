package models

import "time"

// Connect account verification statuses as mapped from the gateway.
const (
	ConnectStatusPending  = "pending"
	ConnectStatusActive   = "active"
	ConnectStatusRejected = "rejected"
	ConnectStatusDisabled = "disabled"
)

// ConnectAccount links a contractor to their payout account at the gateway.
// One per contractor; the status column is a cached copy of the last
// mapping and is refreshed on every status query and account webhook.
type ConnectAccount struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ContractorID     uint      `gorm:"not null;uniqueIndex" json:"contractor_id"`
	GatewayAccountID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_account_id"`
	Status           string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
