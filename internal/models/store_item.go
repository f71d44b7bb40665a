package models

import "time"

// StoreItem is priced in gems and bought through a ledger spend.
type StoreItem struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:120;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	PriceGems   int64     `gorm:"not null" json:"priceGems"`
	Active      bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (StoreItem) TableName() string {
	return "store_items"
}
