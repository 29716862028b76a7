package taxonomy

import (
	"go.uber.org/zap"

	"taxonomy-backend/internal/cache"
	"taxonomy-backend/internal/domain/category"
	"taxonomy-backend/internal/repository"
)

// API groups the repositories of one store.
type API struct {
	Scopes        *ScopeRepository
	Categories    *CategoryRepository
	CategoryItems *CategoryItemRepository

	store repository.Store
}

// NewAPI builds the repositories over store. A non-positive pageSize uses
// repository.DefaultPageSize.
func NewAPI(store repository.Store, logger *zap.Logger, pageSize int) *API {
	scopes := NewRepository[category.Scope](store, ScopeCodec, logger, pageSize)
	categories := NewRepository[category.Category](store, CategoryCodec, logger, pageSize)
	items := NewRepository[category.CategoryItem](store, CategoryItemCodec, logger, pageSize)

	return &API{
		Scopes:        &ScopeRepository{Repository: scopes, categories: categories},
		Categories:    &CategoryRepository{Repository: categories, scopes: scopes, items: items},
		CategoryItems: &CategoryItemRepository{Repository: items, categories: categories},
		store:         store,
	}
}

// Store returns the underlying record store.
func (a *API) Store() repository.Store { return a.store }

// CacheSource adapts the repositories to the cache loader and observer.
func (a *API) CacheSource() cache.Source {
	return cache.Source{
		Scopes:        a.Scopes.Repository,
		Categories:    a.Categories.Repository,
		CategoryItems: a.CategoryItems.Repository,
	}
}
