package database

import (
	"log/slog"
	"time"

	"clubimpact/internal/domain"
	"clubimpact/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seed inserts a demo mission, its proof, store items and a club with one
// member. Rows that already exist are left untouched.
func Seed(db *gorm.DB, logger *slog.Logger) error {
	now := Now()
	admin := models.User{ID: "admin", DisplayName: "Admin", Role: domain.RoleAdmin}
	member := models.User{ID: "demo-user", DisplayName: "Demo User", Gems: 100, InitialGems: 100}
	proof := models.MissionProof{
		ID:          "proof-trees-2025",
		MissionID:   "mission-trees-2025",
		Summary:     "500 saplings planted along the river bank.",
		DeliveredOn: now.AddDate(0, -1, 0),
		Highlights:  []string{"500 saplings", "42 volunteers"},
		Gallery:     []string{"https://cdn.example.org/trees/1.jpg"},
		Partner:     "Green Rivers Trust",
	}
	missions := []models.Mission{
		{
			ID: "mission-trees-2025", Title: "Plant 500 trees", Tagline: "Every minute watched plants a root.",
			Goal: 500, Progress: 500, Deadline: now.AddDate(0, -1, 0), Status: domain.MissionStatusSuccess, ProofID: &proof.ID,
		},
		{
			ID: "mission-water-2026", Title: "Clean water for 10 schools", Tagline: "Hearts become filters.",
			Goal: 10000, Deadline: now.Add(90 * 24 * time.Hour), Status: domain.MissionStatusActive,
		},
	}
	items := []models.StoreItem{
		{ID: "hat-red", Name: "Red hat", Description: "Avatar hat", PriceGems: 30, Active: true},
		{ID: "frame-gold", Name: "Gold frame", Description: "Profile frame", PriceGems: 80, Active: true},
	}
	club := models.Club{ID: "club-welcome", Name: "Welcome club", Description: "Say hi.", CreatedBy: member.ID}
	membership := models.ClubMembership{ClubID: club.ID, UserID: member.ID}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, v := range []any{&admin, &member, &proof, &missions, &items, &club, &membership} {
			// A fresh statement per model; a chained one keeps the previous schema.
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(v).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("seed data ensured", slog.Int("missions", len(missions)), slog.Int("items", len(items)))
	return nil
}
