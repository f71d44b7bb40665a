package models

import (
	"time"

	"gorm.io/datatypes"
)

// ImpactEvent is one append-only ledger entry. Amount is signed: spends are
// recorded as negative gems. UserID is nil for system events.
type ImpactEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    *string           `gorm:"size:64;index" json:"userId"`
	MissionID *string           `gorm:"size:64;index" json:"missionId"`
	Type      string            `gorm:"size:10;not null;index" json:"type"` // heart | gems
	Amount    int64             `gorm:"not null" json:"amount"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	CreatedAt time.Time         `gorm:"index" json:"createdAt"`
}

func (ImpactEvent) TableName() string {
	return "impact_events"
}
