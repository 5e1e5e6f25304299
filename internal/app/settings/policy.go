package settings

import (
	"context"

	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/hooks"
)

// Pseudo categories hosts use for non-content records.
var excludedCategories = map[string]struct{}{
	"attachment":          {},
	"revision":            {},
	"nav_menu_item":       {},
	"custom_css":          {},
	"customize_changeset": {},
	"oembed_cache":        {},
	"user_request":        {},
	"wp_block":            {},
	"wp_template":         {},
	"wp_template_part":    {},
	"wp_global_styles":    {},
	"wp_navigation":       {},
	"elementor_library":   {},
	"fl-builder-template": {},
	"et_pb_layout":        {},
	"wpcf7_contact_form":  {},
	"wpforms":             {},
	"acf-field-group":     {},
	"acf-field":           {},
	"shop_order":          {},
	"shop_coupon":         {},
}

// Third-party categories that often misreport their visibility flags.
var allowedCategories = map[string]struct{}{
	"product":     {},
	"download":    {},
	"event":       {},
	"course":      {},
	"lesson":      {},
	"topic":       {},
	"forum":       {},
	"reply":       {},
	"docs":        {},
	"job_listing": {},
}

// Policy decides which categories may be offered as shareable.
type Policy struct {
	categories content.CategoryRegistry
	bus        hooks.Bus
}

// NewPolicy returns a Policy over the host's category registry.
func NewPolicy(categories content.CategoryRegistry, bus hooks.Bus) *Policy {
	if bus == nil {
		bus = hooks.Nop{}
	}
	return &Policy{categories: categories, bus: bus}
}

// IsValidCategory applies, in order: built-ins accepted, pseudo categories rejected,
// allow-listed third-party categories accepted, internal / non-public / hidden-from-search
// or unknown categories rejected, and finally the category_validity filter (default true).
func (p *Policy) IsValidCategory(ctx context.Context, category string) bool {
	switch {
	case category == "":
		return false
	case category == content.CategoryPost || category == content.CategoryPage:
		return true
	}
	if _, ok := excludedCategories[category]; ok {
		return false
	}
	if _, ok := allowedCategories[category]; ok {
		return true
	}

	info, ok := p.categories.Category(category)
	if !ok || info.Internal || !info.Public || info.ExcludeFromSearch {
		return false
	}

	return hooks.FilterBool(ctx, p.bus, hooks.CategoryValidity, true, category)
}

// ShareableCategories lists registered categories that pass IsValidCategory.
func (p *Policy) ShareableCategories(ctx context.Context) []string {
	var out []string
	for _, c := range p.categories.Categories() {
		if p.IsValidCategory(ctx, c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}
