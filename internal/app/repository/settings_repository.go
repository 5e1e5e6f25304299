package repository

import (
	"context"
	"errors"

	"github.com/sifan077/PowerShare/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository persists serialized settings blobs keyed by scope.
type SettingsRepository interface {
	Get(ctx context.Context, scope string) (string, bool, error)
	Put(ctx context.Context, scope, value string) error
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository returns a GORM-backed SettingsRepository.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, scope string) (string, bool, error) {
	var rec model.SettingsRecord
	if err := r.db.WithContext(ctx).Where("scope = ?", scope).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.Value, true, nil
}

func (r *settingsRepository) Put(ctx context.Context, scope, value string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model.SettingsRecord{Scope: scope, Value: value}).Error
}
