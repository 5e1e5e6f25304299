package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/model"
	"github.com/sifan077/PowerShare/internal/app/repository"
	"go.uber.org/zap"
)

// Store loads and saves Settings as one blob.
type Store struct {
	repo    repository.SettingsRepository
	catalog *catalog.Catalog
	policy  *Policy
	logger  *zap.Logger
}

// NewStore wires a Store.
func NewStore(repo repository.SettingsRepository, cat *catalog.Catalog, policy *Policy, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, catalog: cat, policy: policy, logger: logger}
}

// Defaults returns the unsaved configuration.
func (s *Store) Defaults() Settings {
	return Defaults(s.catalog.Defaults())
}

// Load reads the persisted settings. Storage or decode failures fall back to defaults
// so rendering never fails on configuration.
func (s *Store) Load(ctx context.Context) Settings {
	raw, ok, err := s.repo.Get(ctx, model.SettingsScopeGlobal)
	if err != nil {
		s.logger.Warn("failed to load share settings, using defaults", zap.Error(err))
		return s.Defaults()
	}
	if !ok {
		return s.Defaults()
	}

	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Warn("stored share settings are corrupt, using defaults", zap.Error(err))
		return s.Defaults()
	}
	return s.Sanitize(ctx, stored)
}

// ShareableCategories lists the registered categories an admin may enable, built-ins
// first.
func (s *Store) ShareableCategories(ctx context.Context) []string {
	out := []string{content.CategoryPost, content.CategoryPage}
	if s.policy == nil {
		return out
	}
	for _, c := range s.policy.ShareableCategories(ctx) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Save sanitizes raw and persists the result wholesale.
func (s *Store) Save(ctx context.Context, raw map[string]any) (Settings, error) {
	clean := s.Sanitize(ctx, raw)
	blob, err := json.Marshal(clean)
	if err != nil {
		return clean, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.repo.Put(ctx, model.SettingsScopeGlobal, string(blob)); err != nil {
		return clean, fmt.Errorf("save settings: %w", err)
	}
	return clean, nil
}

// Sanitize coerces every known field of raw, drops unknown keys and unknown service
// ids, and falls back to defaults for missing or invalid values.
func (s *Store) Sanitize(ctx context.Context, raw map[string]any) Settings {
	out := s.Defaults()

	var enabled []string
	if s.decodeField(raw, "enabled_categories", &enabled) {
		out.EnabledCategories = out.EnabledCategories[:0]
		for _, c := range enabled {
			c = strings.TrimSpace(c)
			if c == "" || slices.Contains(out.EnabledCategories, c) {
				continue
			}
			if s.policy != nil && !s.policy.IsValidCategory(ctx, c) {
				continue
			}
			out.EnabledCategories = append(out.EnabledCategories, c)
		}
	}

	var defaults []string
	if s.decodeField(raw, "default_services", &defaults) {
		out.DefaultServices = s.catalog.Filter(defaults)
	}

	var overrides map[string][]string
	if s.decodeField(raw, "category_services", &overrides) {
		for category, ids := range overrides {
			if category == "" {
				continue
			}
			out.CategoryServices[category] = s.catalog.Filter(ids)
		}
	}

	var position, style, mobile string
	if s.decodeField(raw, "display_position", &position) {
		out.DisplayPosition = oneOf(position, out.DisplayPosition, PositionLeft, PositionRight)
	}
	if s.decodeField(raw, "display_style", &style) {
		out.DisplayStyle = oneOf(style, out.DisplayStyle, StyleFloating, StyleInline)
	}
	if s.decodeField(raw, "mobile_behavior", &mobile) {
		out.MobileBehavior = oneOf(mobile, out.MobileBehavior, MobileBottom, MobileHidden, MobileSame)
	}

	return out
}

// decodeField weakly decodes raw[key] into target; a field that cannot be coerced is
// skipped rather than failing the whole save.
func (s *Store) decodeField(raw map[string]any, key string, target any) bool {
	value, ok := raw[key]
	if !ok || value == nil {
		return false
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			checkedMapToSliceHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		s.logger.Warn("settings decoder setup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := dec.Decode(value); err != nil {
		s.logger.Debug("dropping malformed settings field", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// checkedMapToSliceHook turns checkbox-style maps ({"post": true, "page": "0"}) into the
// sorted list of keys whose value is truthy.
func checkedMapToSliceHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Map || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if truthy(v) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "off", "no":
			return false
		}
		return true
	case float64:
		return t != 0
	case int:
		return t != 0
	case nil:
		return false
	}
	return true
}

func oneOf(value, fallback string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if slices.Contains(allowed, value) {
		return value
	}
	return fallback
}
