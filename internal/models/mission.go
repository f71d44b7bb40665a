package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Mission progress only ever grows, through relative updates from the ledger.
type Mission struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Tagline   string    `gorm:"size:300" json:"tagline"`
	Goal      int64     `gorm:"not null" json:"goal"`
	Progress  int64     `gorm:"not null;default:0" json:"progress"`
	Deadline  time.Time `json:"deadline"`
	Status    string    `gorm:"size:20;not null;index" json:"status"` // upcoming | active | success
	ProofID   *string   `gorm:"size:64" json:"proofId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}

func (Mission) TableName() string {
	return "missions"
}

func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type MissionProof struct {
	ID          string                      `gorm:"primaryKey;size:64" json:"id"`
	MissionID   string                      `gorm:"size:64;not null;index" json:"missionId"`
	Summary     string                      `gorm:"type:text" json:"summary"`
	DeliveredOn time.Time                   `json:"deliveredOn"`
	Highlights  datatypes.JSONSlice[string] `json:"highlights"`
	Gallery     datatypes.JSONSlice[string] `json:"gallery"`
	Partner     string                      `gorm:"size:200" json:"partner"`
	CreatedAt   time.Time                   `json:"createdAt"`
}

func (MissionProof) TableName() string {
	return "mission_proofs"
}

func (p *MissionProof) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
