package repository

import (
	"context"

	"clubimpact/internal/models"

	"gorm.io/gorm"
)

type StoreRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

func (r *StoreRepository) Create(ctx context.Context, item *models.StoreItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// GetActiveItem treats retired items as unknown.
func (r *StoreRepository) GetActiveItem(ctx context.Context, id string) (*models.StoreItem, error) {
	var item models.StoreItem
	if err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&item).Error; err != nil {
		return nil, notFound(err, "store item")
	}
	return &item, nil
}

func (r *StoreRepository) ListActive(ctx context.Context) ([]models.StoreItem, error) {
	var list []models.StoreItem
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("price_gems ASC").Order("id ASC").Find(&list).Error
	return list, err
}
