package model

import "time"

// ShareEvent is the append-only fact that an actor shared an item via a service.
type ShareEvent struct {
	ID           int64     `json:"id" db:"id" gorm:"primaryKey;autoIncrement"`
	ItemID       string    `json:"item_id" db:"item_id" gorm:"size:64;not null;index:idx_share_item_service,priority:1"`
	ItemCategory string    `json:"item_category" db:"item_category" gorm:"size:64;not null"`
	ServiceID    string    `json:"service_id" db:"service_id" gorm:"size:32;not null;index:idx_share_item_service,priority:2"`
	ActorID      *int64    `json:"actor_id,omitempty" db:"actor_id" gorm:"index"`
	IP           string    `json:"ip" db:"ip" gorm:"size:64"`
	UserAgent    string    `json:"user_agent" db:"user_agent" gorm:"type:text"`
	Referrer     string    `json:"referrer" db:"referrer" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" db:"created_at" gorm:"not null;index"`
}

func (ShareEvent) TableName() string {
	return "share_events"
}
