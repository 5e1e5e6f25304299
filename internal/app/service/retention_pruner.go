package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultPruneInterval = 6 * time.Hour

// Pruner is the part of Tracker the retention loop needs.
type Pruner interface {
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// RetentionPruner periodically deletes share events older than the retention window.
type RetentionPruner struct {
	logger   *zap.Logger
	tracker  Pruner
	days     int
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

// NewRetentionPruner creates a pruner keeping days of share history.
func NewRetentionPruner(logger *zap.Logger, tracker Pruner, days int, interval time.Duration) *RetentionPruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &RetentionPruner{
		logger:   logger,
		tracker:  tracker,
		days:     days,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start prunes once and then on every interval.
func (p *RetentionPruner) Start() {
	go p.run()
}

// Stop ends the loop and waits for an in-flight prune to finish.
func (p *RetentionPruner) Stop() {
	close(p.stopChan)
	<-p.done
}

func (p *RetentionPruner) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.prune()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stopChan:
			p.logger.Info("share retention pruner stopped")
			return
		}
	}
}

func (p *RetentionPruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	deleted, err := p.tracker.PruneOlderThan(ctx, p.days)
	if err != nil {
		p.logger.Error("failed to prune share events", zap.Int("retention_days", p.days), zap.Error(err))
		return
	}

	if deleted > 0 {
		p.logger.Info("pruned expired share events",
			zap.Int64("count", deleted),
			zap.Int("retention_days", p.days),
		)
	}
}
