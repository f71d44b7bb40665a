package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Club struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:120;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedBy   string    `gorm:"size:64;not null;index" json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Club) TableName() string {
	return "clubs"
}

func (c *Club) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type ClubMembership struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	ClubID   string    `gorm:"size:64;not null;uniqueIndex:idx_club_member" json:"clubId"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex:idx_club_member;index" json:"userId"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

func (ClubMembership) TableName() string {
	return "club_memberships"
}

// ClubMessage is append-only. History is ordered by (CreatedAt, ID).
type ClubMessage struct {
	ID        uint      `gorm:"primaryKey;index:idx_club_messages_page,priority:3" json:"id"`
	ClubID    string    `gorm:"size:64;not null;index:idx_club_messages_page,priority:1" json:"clubId"`
	SenderID  string    `gorm:"size:64;not null;index" json:"senderId"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"index:idx_club_messages_page,priority:2" json:"createdAt"`
}

func (ClubMessage) TableName() string {
	return "club_messages"
}
