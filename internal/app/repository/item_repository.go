package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/sifan077/PowerShare/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrItemNotFound signals that the requested content item does not exist.
	ErrItemNotFound = errors.New("item not found")
)

const (
	warmBatchSize      = 1000
	defaultMissTTL     = time.Minute
	missingItemsPrefix = "item_missing:"
)

// ItemRepository defines the data access contract for host content items.
type ItemRepository interface {
	Upsert(ctx context.Context, item *model.Item) error
	GetByID(ctx context.Context, id string) (*model.Item, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]model.Item, error)
}

// GormItemRepository is the GORM-backed ItemRepository.
type GormItemRepository struct {
	db *gorm.DB
	// count looks an id up in the items table.
	count func(ctx context.Context, id string) (int64, error)

	mu     sync.RWMutex
	known  *bloom.BloomFilter
	warmed bool

	misses  cache.Store
	missTTL time.Duration
}

// NewItemRepository returns a GORM-backed ItemRepository. Ids seen by WarmFilter or
// Upsert are kept in a bloom filter. A filter miss still asks the database, since rows
// may be written by other processes; with WithMissCache the confirmed absence is
// remembered for a short while.
func NewItemRepository(db *gorm.DB, filterSize uint, fpRate float64) *GormItemRepository {
	r := newItemRepository(filterSize, fpRate)
	r.db = db
	r.count = func(ctx context.Context, id string) (int64, error) {
		var n int64
		err := db.WithContext(ctx).Model(&model.Item{}).Where("id = ?", id).Count(&n).Error
		return n, err
	}
	return r
}

func newItemRepository(filterSize uint, fpRate float64) *GormItemRepository {
	if filterSize == 0 {
		filterSize = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	return &GormItemRepository{
		known:   bloom.NewWithEstimates(filterSize, fpRate),
		missTTL: defaultMissTTL,
	}
}

// WithMissCache stores confirmed absences in store for ttl (one minute when ttl <= 0).
func (r *GormItemRepository) WithMissCache(store cache.Store, ttl time.Duration) *GormItemRepository {
	r.misses = store
	if ttl > 0 {
		r.missTTL = ttl
	}
	return r
}

// WarmFilter loads every stored item id into the bloom filter.
func (r *GormItemRepository) WarmFilter(ctx context.Context) error {
	var batch []model.Item
	result := r.db.WithContext(ctx).
		Model(&model.Item{}).
		Select("id").
		FindInBatches(&batch, warmBatchSize, func(tx *gorm.DB, _ int) error {
			r.mu.Lock()
			for _, item := range batch {
				r.known.AddString(item.ID)
			}
			r.mu.Unlock()
			return nil
		})
	if result.Error != nil {
		return result.Error
	}

	r.mu.Lock()
	r.warmed = true
	r.mu.Unlock()
	return nil
}

func (r *GormItemRepository) Upsert(ctx context.Context, item *model.Item) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"category", "title", "body", "permalink", "status", "updated_at"}),
		}).
		Create(item).Error
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.known.AddString(item.ID)
	r.mu.Unlock()

	if r.misses != nil {
		_ = r.misses.Delete(ctx, missingItemsPrefix+item.ID)
	}
	return nil
}

func (r *GormItemRepository) GetByID(ctx context.Context, id string) (*model.Item, error) {
	var item model.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *GormItemRepository) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	r.mu.RLock()
	filtered := r.warmed && !r.known.TestString(id)
	r.mu.RUnlock()

	if filtered && r.misses != nil {
		if _, err := r.misses.Get(ctx, missingItemsPrefix+id); err == nil {
			return false, nil
		}
	}

	n, err := r.count(ctx, id)
	if err != nil {
		return false, err
	}
	if n == 0 {
		if filtered && r.misses != nil {
			_ = r.misses.Set(ctx, missingItemsPrefix+id, []byte{1}, r.missTTL)
		}
		return false, nil
	}

	if filtered {
		// Written elsewhere since the filter was warmed.
		r.mu.Lock()
		r.known.AddString(id)
		r.mu.Unlock()
	}
	return true, nil
}

func (r *GormItemRepository) List(ctx context.Context, limit, offset int) ([]model.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.Item
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}
