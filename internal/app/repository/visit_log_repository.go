package repository

import (
	"context"
	"errors"

	"github.com/sifan077/PowerShare/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisitLogRepository stores the rolling per-item visit lists.
type VisitLogRepository interface {
	Get(ctx context.Context, itemID string) (*model.VisitLog, error)
	Save(ctx context.Context, log *model.VisitLog) error
}

type visitLogRepository struct {
	db *gorm.DB
}

// NewVisitLogRepository returns a GORM-backed VisitLogRepository.
func NewVisitLogRepository(db *gorm.DB) VisitLogRepository {
	return &visitLogRepository{db: db}
}

// Get returns the stored list, or an empty one when the item has no visits yet.
func (r *visitLogRepository) Get(ctx context.Context, itemID string) (*model.VisitLog, error) {
	var log model.VisitLog
	if err := r.db.WithContext(ctx).Where("item_id = ?", itemID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.VisitLog{ItemID: itemID}, nil
		}
		return nil, err
	}
	return &log, nil
}

// Save overwrites the whole list; concurrent writers race last-writer-wins.
func (r *visitLogRepository) Save(ctx context.Context, log *model.VisitLog) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"visits", "updated_at"}),
		}).
		Create(log).Error
}
