package model

import "time"

// MaxVisitsPerItem bounds the rolling visit list kept for each item.
const MaxVisitsPerItem = 100

// Visit records an arrival through a tracking-decorated link.
type Visit struct {
	ItemID     string    `json:"item_id"`
	ServiceID  string    `json:"service_id"`
	SharedBy   int64     `json:"shared_by"`
	Category   string    `json:"category"`
	SharedAt   int64     `json:"shared_at"`
	VisitorIP  string    `json:"visitor_ip"`
	OccurredAt time.Time `json:"occurred_at"`
}

// VisitLog holds the capped, oldest-first visit list attached to an item.
type VisitLog struct {
	ItemID    string    `db:"item_id" gorm:"primaryKey;size:64"`
	Visits    []Visit   `db:"visits" gorm:"serializer:json;type:jsonb"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

func (VisitLog) TableName() string {
	return "item_visit_logs"
}

// Append adds v and evicts the oldest entries beyond limit.
func (l *VisitLog) Append(v Visit, limit int) {
	l.Visits = append(l.Visits, v)
	if limit > 0 && len(l.Visits) > limit {
		l.Visits = append([]Visit(nil), l.Visits[len(l.Visits)-limit:]...)
	}
}
