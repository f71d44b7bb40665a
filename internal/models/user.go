package models

import (
	"time"

	"clubimpact/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User owns a gem balance. Gems is written only by the ledger service;
// InitialGems is the balance the account was opened with and never changes.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:100;not null" json:"displayName"`
	Role        string    `gorm:"size:20;not null;default:'MEMBER'" json:"role"`
	Gems        int64     `gorm:"not null;default:0" json:"gems"`
	InitialGems int64     `gorm:"not null;default:0" json:"initialGems"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = domain.RoleMember
	}
	return nil
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }
