package repository

import (
	"github.com/LukasWeber/TradiePay/app/models"
	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a GORM-backed user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(u *models.User) error {
	return r.db.Create(u).Error
}

func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("api_key_hash = ?", hash).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
