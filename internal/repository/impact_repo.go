package repository

import (
	"context"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"

	"gorm.io/gorm"
)

// ImpactRepository appends to and reads the impact_events log. There is no
// update or delete.
type ImpactRepository struct {
	db *gorm.DB
}

func NewImpactRepository(db *gorm.DB) *ImpactRepository {
	return &ImpactRepository{db: db}
}

func (r *ImpactRepository) WithTx(tx *gorm.DB) *ImpactRepository {
	return &ImpactRepository{db: tx}
}

func (r *ImpactRepository) Create(ctx context.Context, e *models.ImpactEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// SumGems totals the gems-typed amounts recorded for a user.
func (r *ImpactRepository) SumGems(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.ImpactEvent{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ?", userID, domain.EventTypeGems).
		Scan(&total).Error
	return total, err
}

// ListByUser returns the newest events first.
func (r *ImpactRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ImpactEvent, error) {
	var list []models.ImpactEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
