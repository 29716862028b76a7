package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/service/taxonomy"
)

// Seed is the YAML document accepted by the load command.
type Seed struct {
	Scopes []SeedScope `yaml:"scopes"`
}

// SeedScope is a scope and its root categories.
type SeedScope struct {
	Name       string         `yaml:"name"`
	Categories []SeedCategory `yaml:"categories"`
}

// SeedCategory is a category with its items and child categories.
type SeedCategory struct {
	Name     string         `yaml:"name"`
	Items    []SeedItem     `yaml:"items"`
	Children []SeedCategory `yaml:"children"`
}

// SeedItem names an external resource.
type SeedItem struct {
	Module   string `yaml:"module"`
	Instance string `yaml:"instance"`
}

// SeedStats counts what a load created.
type SeedStats struct {
	Scopes     int
	Categories int
	Items      int
}

// ParseSeed decodes a seed document.
func ParseSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, apperrors.Validation("INVALID_SEED", "cannot parse seed file").WithDetails(err.Error()).WithCause(err).Build()
	}
	return seed, nil
}

// Apply creates whatever the seed names and the store lacks. Existing
// scopes and categories are matched by name, case-insensitively, so
// applying the same seed twice changes nothing.
func (s Seed) Apply(ctx context.Context, api *taxonomy.API) (SeedStats, error) {
	var stats SeedStats
	for _, ss := range s.Scopes {
		scope, created, err := ensureScope(ctx, api, ss.Name)
		if err != nil {
			return stats, err
		}
		if created {
			stats.Scopes++
		}

		existing, err := api.Categories.GetByScope(ctx, scope.ID)
		if err != nil {
			return stats, err
		}
		index := make(map[string]category.Category, len(existing))
		for _, c := range existing {
			index[siblingKey(c.ParentCategory, c.Name)] = c
		}
		for _, sc := range ss.Categories {
			if err := applyCategory(ctx, api, scope.ID, "", sc, index, &stats); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func ensureScope(ctx context.Context, api *taxonomy.API, name string) (category.Scope, bool, error) {
	scope, err := api.Scopes.GetByName(ctx, name)
	if err == nil {
		return scope, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return category.Scope{}, false, err
	}
	created, err := api.Scopes.Create(ctx, category.Scope{Name: name})
	if err != nil {
		return category.Scope{}, false, err
	}
	return created[0], true, nil
}

func applyCategory(
	ctx context.Context,
	api *taxonomy.API,
	scopeID category.ScopeID,
	parent category.CategoryID,
	sc SeedCategory,
	index map[string]category.Category,
	stats *SeedStats,
) error {
	key := siblingKey(parent, sc.Name)
	cat, ok := index[key]
	if !ok {
		created, err := api.Categories.Create(ctx, category.Category{Name: sc.Name, Scope: scopeID, ParentCategory: parent})
		if err != nil {
			return fmt.Errorf("category %q: %w", sc.Name, err)
		}
		cat = created[0]
		index[key] = cat
		stats.Categories++
	}

	if len(sc.Items) > 0 {
		before, err := api.CategoryItems.GetChildItems(ctx, cat.ID)
		if err != nil {
			return err
		}
		items := make([]category.CategoryItem, 0, len(sc.Items))
		for _, it := range sc.Items {
			items = append(items, category.CategoryItem{ModuleID: it.Module, InstanceID: it.Instance})
		}
		if err := api.CategoryItems.AddChildItems(ctx, cat.ID, items...); err != nil {
			return fmt.Errorf("items of %q: %w", sc.Name, err)
		}
		after, err := api.CategoryItems.GetChildItems(ctx, cat.ID)
		if err != nil {
			return err
		}
		stats.Items += len(after) - len(before)
	}

	for _, child := range sc.Children {
		if err := applyCategory(ctx, api, scopeID, cat.ID, child, index, stats); err != nil {
			return err
		}
	}
	return nil
}

func siblingKey(parent category.CategoryID, name string) string {
	return string(parent) + "\x00" + strings.ToLower(name)
}
