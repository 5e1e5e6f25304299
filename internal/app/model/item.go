package model

import "time"

// Item statuses understood by the share flow.
const (
	ItemStatusPublished = "publish"
	ItemStatusDraft     = "draft"
	ItemStatusPrivate   = "private"
)

// Item is a unit of shareable host content.
type Item struct {
	ID        string    `db:"id" gorm:"primaryKey;size:64"`
	Category  string    `db:"category" gorm:"size:64;not null;index"`
	Title     string    `db:"title" gorm:"type:text;not null"`
	Body      string    `db:"body" gorm:"type:text"`
	Permalink string    `db:"permalink" gorm:"type:text;not null"`
	Status    string    `db:"status" gorm:"size:16;not null;default:publish"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

// Published reports whether the item is publicly visible.
func (i *Item) Published() bool {
	return i.Status == ItemStatusPublished
}
