package repository

import (
	"context"
	"time"

	"github.com/sifan077/PowerShare/internal/app/model"
	"gorm.io/gorm"
)

// ShareEventRepository defines the data access contract for share events.
type ShareEventRepository interface {
	Create(ctx context.Context, event *model.ShareEvent) error
	ItemAggregate(ctx context.Context, itemID string, recent int) (*model.ItemStats, error)
	UserAggregate(ctx context.Context, actorID int64, favorites, recent int) (*model.UserStats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type shareEventRepository struct {
	db *gorm.DB
}

// NewShareEventRepository returns a GORM-backed ShareEventRepository.
func NewShareEventRepository(db *gorm.DB) ShareEventRepository {
	return &shareEventRepository{db: db}
}

func (r *shareEventRepository) Create(ctx context.Context, event *model.ShareEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *shareEventRepository) ItemAggregate(ctx context.Context, itemID string, recent int) (*model.ItemStats, error) {
	stats := &model.ItemStats{}
	scope := r.db.WithContext(ctx).Model(&model.ShareEvent{}).Where("item_id = ?", itemID)

	if err := scope.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	if err := scope.Session(&gorm.Session{}).
		Select("service_id AS service, COUNT(*) AS count").
		Group("service_id").
		Order("COUNT(*) DESC").
		Scan(&stats.ByService).Error; err != nil {
		return nil, err
	}

	var events []model.ShareEvent
	if err := scope.Session(&gorm.Session{}).
		Order("created_at DESC").
		Limit(recent).
		Find(&events).Error; err != nil {
		return nil, err
	}
	stats.Recent = toRecentShares(events)

	return stats, nil
}

func (r *shareEventRepository) UserAggregate(ctx context.Context, actorID int64, favorites, recent int) (*model.UserStats, error) {
	stats := &model.UserStats{}
	scope := r.db.WithContext(ctx).Model(&model.ShareEvent{}).Where("actor_id = ?", actorID)

	if err := scope.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	if err := scope.Session(&gorm.Session{}).
		Select("service_id AS service, COUNT(*) AS count").
		Group("service_id").
		Order("COUNT(*) DESC").
		Limit(favorites).
		Scan(&stats.FavoriteServices).Error; err != nil {
		return nil, err
	}

	var events []model.ShareEvent
	if err := scope.Session(&gorm.Session{}).
		Order("created_at DESC").
		Limit(recent).
		Find(&events).Error; err != nil {
		return nil, err
	}
	stats.RecentShares = toRecentShares(events)

	return stats, nil
}

func (r *shareEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.ShareEvent{})
	return result.RowsAffected, result.Error
}

func toRecentShares(events []model.ShareEvent) []model.RecentShare {
	out := make([]model.RecentShare, 0, len(events))
	for _, e := range events {
		var actor int64
		if e.ActorID != nil {
			actor = *e.ActorID
		}
		out = append(out, model.RecentShare{
			ItemID:    e.ItemID,
			Service:   e.ServiceID,
			ActorID:   actor,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
