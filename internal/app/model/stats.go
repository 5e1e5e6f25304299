package model

import "time"

// Result caps for aggregates.
const (
	RecentSharesLimit     = 10
	FavoriteServicesLimit = 5
	TopItemsLimit         = 10
)

// ServiceCount is a per-service share tally.
type ServiceCount struct {
	Service string `json:"service"`
	Count   int64  `json:"count"`
}

// RecentShare is a compact view of one share event.
type RecentShare struct {
	ItemID    string    `json:"item_id"`
	Service   string    `json:"service"`
	ActorID   int64     `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemStats aggregates share events of one item.
type ItemStats struct {
	Total     int64          `json:"total"`
	ByService []ServiceCount `json:"by_service"`
	Recent    []RecentShare  `json:"recent"`
}

// UserStats aggregates share events of one actor.
type UserStats struct {
	Total            int64          `json:"total"`
	FavoriteServices []ServiceCount `json:"favorite_services"`
	RecentShares     []RecentShare  `json:"recent_shares"`
}

// StatsFilter narrows the overall report.
type StatsFilter struct {
	From     time.Time
	To       time.Time
	Category string
	Service  string
}

// TopItem is one row of the most shared items.
type TopItem struct {
	ItemID   string `json:"item_id"`
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// OverallStats is the admin report over a time window.
type OverallStats struct {
	TotalShares      int64          `json:"total_shares"`
	UniqueItems      int64          `json:"unique_items"`
	UniqueUsers      int64          `json:"unique_users"`
	UniqueIPs        int64          `json:"unique_ips"`
	TopItems         []TopItem      `json:"top_items"`
	ServiceBreakdown []ServiceCount `json:"service_breakdown"`
}
