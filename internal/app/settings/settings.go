// Package settings owns the share configuration: which categories are shareable, which
// services they show and how buttons are displayed.
package settings

import (
	"slices"
)

// Display positions.
const (
	PositionLeft  = "left"
	PositionRight = "right"
)

// Display styles.
const (
	StyleFloating = "floating"
	StyleInline   = "inline"
)

// Mobile behaviours.
const (
	MobileBottom = "bottom"
	MobileHidden = "hidden"
	MobileSame   = "same"
)

// Settings is the sanitized share configuration.
type Settings struct {
	EnabledCategories []string            `json:"enabled_categories"`
	CategoryServices  map[string][]string `json:"category_services"`
	DefaultServices   []string            `json:"default_services"`
	DisplayPosition   string              `json:"display_position"`
	DisplayStyle      string              `json:"display_style"`
	MobileBehavior    string              `json:"mobile_behavior"`
}

// Defaults returns the configuration used before anything is saved.
func Defaults(defaultServices []string) Settings {
	return Settings{
		EnabledCategories: []string{"post"},
		CategoryServices:  map[string][]string{},
		DefaultServices:   append([]string(nil), defaultServices...),
		DisplayPosition:   PositionLeft,
		DisplayStyle:      StyleInline,
		MobileBehavior:    MobileBottom,
	}
}

// IsCategoryEnabled reports whether items of category get share buttons.
func (s Settings) IsCategoryEnabled(category string) bool {
	return category != "" && slices.Contains(s.EnabledCategories, category)
}

// ServicesFor returns the category override when present, else the default services.
func (s Settings) ServicesFor(category string) []string {
	if override, ok := s.CategoryServices[category]; ok {
		return append([]string(nil), override...)
	}
	return append([]string(nil), s.DefaultServices...)
}
