// Package hooks provides the named extension points other components can tap.
package hooks

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Extension point names.
const (
	ShareRecorded           = "share_recorded"
	VisitRecorded           = "visit_recorded"
	OutboundURL             = "outbound_url"
	CategoryValidity        = "category_validity"
	RateLimitThreshold      = "rate_limit_threshold"
	AnonymousSharingAllowed = "anonymous_sharing_allowed"
)

// Bus is the narrow interface the core calls for notifications and value filters.
type Bus interface {
	Publish(ctx context.Context, name string, payload any)
	Filter(ctx context.Context, name string, value any, args ...any) any
}

// ActionFunc observes a notification.
type ActionFunc func(ctx context.Context, payload any)

// FilterFunc transforms a value; args carry context such as the item id.
type FilterFunc func(ctx context.Context, value any, args ...any) any

// Registry is an in-process Bus. Callbacks run synchronously in registration order.
type Registry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	actions map[string][]ActionFunc
	filters map[string][]FilterFunc
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger,
		actions: make(map[string][]ActionFunc),
		filters: make(map[string][]FilterFunc),
	}
}

// OnAction registers fn for the named notification.
func (r *Registry) OnAction(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = append(r.actions[name], fn)
}

// OnFilter registers fn for the named filter.
func (r *Registry) OnFilter(name string, fn FilterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = append(r.filters[name], fn)
}

func (r *Registry) Publish(ctx context.Context, name string, payload any) {
	r.mu.RLock()
	fns := append([]ActionFunc(nil), r.actions[name]...)
	r.mu.RUnlock()

	for _, fn := range fns {
		r.runAction(ctx, name, fn, payload)
	}
}

func (r *Registry) Filter(ctx context.Context, name string, value any, args ...any) any {
	r.mu.RLock()
	fns := append([]FilterFunc(nil), r.filters[name]...)
	r.mu.RUnlock()

	for _, fn := range fns {
		value = r.runFilter(ctx, name, fn, value, args)
	}
	return value
}

// A misbehaving extension must not take down the request that triggered it.
func (r *Registry) runAction(ctx context.Context, name string, fn ActionFunc, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook action panicked", zap.String("hook", name), zap.Any("panic", rec))
		}
	}()
	fn(ctx, payload)
}

func (r *Registry) runFilter(ctx context.Context, name string, fn FilterFunc, value any, args []any) (out any) {
	out = value
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook filter panicked", zap.String("hook", name), zap.Any("panic", rec))
			out = value
		}
	}()
	return fn(ctx, value, args...)
}

// FilterString runs a string filter and keeps the input when a callback returns another type.
func FilterString(ctx context.Context, bus Bus, name, value string, args ...any) string {
	if bus == nil {
		return value
	}
	if s, ok := bus.Filter(ctx, name, value, args...).(string); ok {
		return s
	}
	return value
}

// FilterBool is FilterString for booleans.
func FilterBool(ctx context.Context, bus Bus, name string, value bool, args ...any) bool {
	if bus == nil {
		return value
	}
	if b, ok := bus.Filter(ctx, name, value, args...).(bool); ok {
		return b
	}
	return value
}

// FilterInt is FilterString for ints.
func FilterInt(ctx context.Context, bus Bus, name string, value int, args ...any) int {
	if bus == nil {
		return value
	}
	if n, ok := bus.Filter(ctx, name, value, args...).(int); ok {
		return n
	}
	return value
}

// Nop is a Bus that ignores notifications and returns filter inputs unchanged.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) {}

func (Nop) Filter(_ context.Context, _ string, value any, _ ...any) any { return value }
