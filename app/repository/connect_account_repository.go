package repository

import (
	"github.com/LukasWeber/TradiePay/app/models"
	"gorm.io/gorm"
)

type connectAccountRepository struct {
	db *gorm.DB
}

// NewConnectAccountRepository creates a GORM-backed connect account repository.
func NewConnectAccountRepository(db *gorm.DB) ConnectAccountRepository {
	return &connectAccountRepository{db: db}
}

func (r *connectAccountRepository) Create(a *models.ConnectAccount) error {
	return r.db.Create(a).Error
}

func (r *connectAccountRepository) GetByContractorID(contractorID uint) (*models.ConnectAccount, error) {
	var a models.ConnectAccount
	if err := r.db.Where("contractor_id = ?", contractorID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *connectAccountRepository) GetByGatewayAccountID(gatewayAccountID string) (*models.ConnectAccount, error) {
	var a models.ConnectAccount
	if err := r.db.Where("gateway_account_id = ?", gatewayAccountID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *connectAccountRepository) UpdateStatus(id uint, status string) error {
	return r.db.Model(&models.ConnectAccount{}).Where("id = ?", id).Update("status", status).Error
}
