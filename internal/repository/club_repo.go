package repository

import (
	"context"

	"clubimpact/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClubRepository struct {
	db *gorm.DB
}

func NewClubRepository(db *gorm.DB) *ClubRepository {
	return &ClubRepository{db: db}
}

// Create inserts the club and makes its creator the first member.
func (r *ClubRepository) Create(ctx context.Context, c *models.Club) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Create(&models.ClubMembership{ClubID: c.ID, UserID: c.CreatedBy}).Error
	})
}

func (r *ClubRepository) GetByID(ctx context.Context, id string) (*models.Club, error) {
	var c models.Club
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "club")
	}
	return &c, nil
}

// AddMember is idempotent: joining twice keeps the original joinedAt.
func (r *ClubRepository) AddMember(ctx context.Context, clubID, userID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ClubMembership{ClubID: clubID, UserID: userID}).Error
}

func (r *ClubRepository) IsMember(ctx context.Context, clubID, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.ClubMembership{}).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *ClubRepository) ListMembers(ctx context.Context, clubID string) ([]models.ClubMembership, error) {
	var list []models.ClubMembership
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("joined_at ASC").Order("id ASC").
		Find(&list).Error
	return list, err
}
