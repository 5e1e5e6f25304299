// Package content describes what the service needs from the host's content store.
package content

import (
	"context"
	"strings"

	"github.com/sifan077/PowerShare/config"
	"github.com/sifan077/PowerShare/internal/app/model"
)

// Built-in categories that are always shareable.
const (
	CategoryPost = "post"
	CategoryPage = "page"
)

// Repository resolves content items.
type Repository interface {
	GetByID(ctx context.Context, id string) (*model.Item, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// CategoryInfo carries the visibility flags the host reports for a category.
type CategoryInfo struct {
	Name              string
	Public            bool
	Internal          bool
	ExcludeFromSearch bool
}

// CategoryRegistry looks up category metadata.
type CategoryRegistry interface {
	Category(name string) (CategoryInfo, bool)
	Categories() []CategoryInfo
}

// StaticCategories is a CategoryRegistry built from configuration.
type StaticCategories struct {
	order  []string
	byName map[string]CategoryInfo
}

// NewStaticCategories registers the built-ins followed by the configured categories.
func NewStaticCategories(cfgs []config.CategoryConfig) *StaticCategories {
	s := &StaticCategories{byName: make(map[string]CategoryInfo)}
	s.add(CategoryInfo{Name: CategoryPost, Public: true})
	s.add(CategoryInfo{Name: CategoryPage, Public: true})
	for _, c := range cfgs {
		if c.Name == "" {
			continue
		}
		s.add(CategoryInfo{
			Name:              c.Name,
			Public:            c.Public,
			Internal:          c.Internal,
			ExcludeFromSearch: c.ExcludeFromSearch,
		})
	}
	return s
}

func (s *StaticCategories) add(info CategoryInfo) {
	if _, ok := s.byName[info.Name]; !ok {
		s.order = append(s.order, info.Name)
	}
	s.byName[info.Name] = info
}

func (s *StaticCategories) Category(name string) (CategoryInfo, bool) {
	info, ok := s.byName[name]
	return info, ok
}

func (s *StaticCategories) Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Excerpt returns at most words words of text, with an ellipsis when truncated.
func Excerpt(text string, words int) string {
	fields := strings.Fields(text)
	if words <= 0 || len(fields) <= words {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:words], " ") + "…"
}
