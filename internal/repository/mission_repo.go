package repository

import (
	"context"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"

	"gorm.io/gorm"
)

type MissionRepository struct {
	db *gorm.DB
}

func NewMissionRepository(db *gorm.DB) *MissionRepository {
	return &MissionRepository{db: db}
}

func (r *MissionRepository) WithTx(tx *gorm.DB) *MissionRepository {
	return &MissionRepository{db: tx}
}

func (r *MissionRepository) Create(ctx context.Context, m *models.Mission) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MissionRepository) GetByID(ctx context.Context, id string) (*models.Mission, error) {
	var m models.Mission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, "mission")
	}
	return &m, nil
}

// GetCurrent returns the most recently updated active or successful mission.
func (r *MissionRepository) GetCurrent(ctx context.Context) (*models.Mission, error) {
	var m models.Mission
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{domain.MissionStatusActive, domain.MissionStatusSuccess}).
		Order("updated_at DESC").Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "current mission")
	}
	return &m, nil
}

// AddProgress increments progress in place and flips an active mission to
// success once the goal is reached. The status expression is listed first so
// it sees the pre-increment value on every dialect.
func (r *MissionRepository) AddProgress(ctx context.Context, id string, delta int64) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE missions SET
			status = CASE WHEN status = ? AND progress + ? >= goal THEN ? ELSE status END,
			progress = progress + ?,
			updated_at = ?
		WHERE id = ?`,
		domain.MissionStatusActive, delta, domain.MissionStatusSuccess, delta, r.db.NowFunc(), id,
	)
	return res.RowsAffected, res.Error
}

func (r *MissionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Mission{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// CountContributors counts distinct users with heart events on the mission.
func (r *MissionRepository) CountContributors(ctx context.Context, missionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.ImpactEvent{}).
		Where("mission_id = ? AND type = ? AND user_id IS NOT NULL", missionID, domain.EventTypeHeart).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}

func (r *MissionRepository) CreateProof(ctx context.Context, p *models.MissionProof) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *MissionRepository) GetProof(ctx context.Context, id string) (*models.MissionProof, error) {
	var p models.MissionProof
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "mission proof")
	}
	return &p, nil
}
