package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sifan077/PowerShare/internal/app/model"
)

// Querier is the subset of pgxpool.Pool used by the reporting queries.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ShareReportRepository runs ad hoc reporting queries over share events.
type ShareReportRepository interface {
	Overall(ctx context.Context, filter model.StatsFilter) (*model.OverallStats, error)
}

type shareReportRepository struct {
	db Querier
}

// NewShareReportRepository returns a pgx-backed ShareReportRepository.
func NewShareReportRepository(db Querier) ShareReportRepository {
	return &shareReportRepository{db: db}
}

func (r *shareReportRepository) Overall(ctx context.Context, filter model.StatsFilter) (*model.OverallStats, error) {
	where, args := buildReportFilter(filter)
	stats := &model.OverallStats{}

	summary := "SELECT COUNT(*), COUNT(DISTINCT item_id), COUNT(DISTINCT actor_id), COUNT(DISTINCT ip) FROM share_events" + where
	if err := r.db.QueryRow(ctx, summary, args...).Scan(
		&stats.TotalShares,
		&stats.UniqueItems,
		&stats.UniqueUsers,
		&stats.UniqueIPs,
	); err != nil {
		return nil, fmt.Errorf("report summary: %w", err)
	}

	top := fmt.Sprintf(
		"SELECT item_id, item_category, COUNT(*) FROM share_events%s GROUP BY item_id, item_category ORDER BY COUNT(*) DESC LIMIT %d",
		where, model.TopItemsLimit,
	)
	rows, err := r.db.Query(ctx, top, args...)
	if err != nil {
		return nil, fmt.Errorf("report top items: %w", err)
	}
	stats.TopItems, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TopItem, error) {
		var item model.TopItem
		err := row.Scan(&item.ItemID, &item.Category, &item.Count)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("report top items: %w", err)
	}

	breakdown := "SELECT service_id, COUNT(*) FROM share_events" + where + " GROUP BY service_id ORDER BY COUNT(*) DESC"
	rows, err = r.db.Query(ctx, breakdown, args...)
	if err != nil {
		return nil, fmt.Errorf("report services: %w", err)
	}
	stats.ServiceBreakdown, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ServiceCount, error) {
		var sc model.ServiceCount
		err := row.Scan(&sc.Service, &sc.Count)
		return sc, err
	})
	if err != nil {
		return nil, fmt.Errorf("report services: %w", err)
	}

	return stats, nil
}

// buildReportFilter renders a WHERE clause with positional placeholders.
func buildReportFilter(filter model.StatsFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	if filter.Category != "" {
		add("item_category = $%d", filter.Category)
	}
	if filter.Service != "" {
		add("service_id = $%d", filter.Service)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
