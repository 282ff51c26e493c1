package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	ROLE_CUSTOMER   = "customer"
	ROLE_CONTRACTOR = "contractor"
	ROLE_ADMIN      = "admin"

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User carries the minimum the payment service needs for authentication
// and ownership checks. Account management lives in the main marketplace
// backend; rows here are synced from it.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150)" json:"name"`
	Email      string    `gorm:"uniqueIndex;type:varchar(200)" json:"email"`
	Role       string    `gorm:"type:varchar(50);default:'customer'" json:"role"`
	Status     string    `gorm:"type:varchar(50);default:'active'" json:"status"`
	APIKeyHash string    `gorm:"type:varchar(64);index" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
