// Package cache keeps an in-memory mirror of the taxonomy and answers
// hierarchical questions about it: children, descendants, ancestor paths,
// subtrees and item membership. An Observer keeps a Cache in sync with the
// store's change stream.
package cache

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"taxonomy-backend/internal/domain/category"
	"taxonomy-backend/internal/domain/shared"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// EntitySource is the store-facing side of one entity kind.
type EntitySource[T any] interface {
	ReadAll(ctx context.Context) ([]T, error)
	Subscribe(ctx context.Context, handler func(category.ChangeEvent[T])) (repository.Subscription, error)
}

// Source groups the three entity sources a cache is populated from.
type Source struct {
	Scopes        EntitySource[category.Scope]
	Categories    EntitySource[category.Category]
	CategoryItems EntitySource[category.CategoryItem]
}

func (s Source) validate() error {
	if s.Scopes == nil || s.Categories == nil || s.CategoryItems == nil {
		return apperrors.Validation("INCOMPLETE_SOURCE", "scopes, categories and category items sources are required").Build()
	}
	return nil
}

// Option configures a Cache.
type Option func(*Cache)

// WithCaseInsensitiveScopeNames controls whether scope name lookups fold
// case. It is on by default.
func WithCaseInsensitiveScopeNames(enabled bool) Option {
	return func(c *Cache) { c.foldNames = enabled }
}

// Cache is safe for concurrent use. A single mutex guards every read and
// write so compound traversals observe one consistent snapshot.
type Cache struct {
	mu sync.Mutex

	scopes       map[category.ScopeID]category.Scope
	scopesByName map[string]category.Scope
	categories   map[category.CategoryID]category.Category
	items        map[category.CategoryItemID]category.CategoryItem

	scopeCategories *shared.OneToMany[category.ScopeID, category.CategoryID]
	childCategories *shared.OneToMany[category.CategoryID, category.CategoryID]
	childItems      *shared.OneToMany[category.CategoryID, category.CategoryItemID]
	itemIdentifiers *shared.ManyToMany[category.CategoryID, category.CategoryItemIdentifier]

	foldNames bool
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		scopes:          make(map[category.ScopeID]category.Scope),
		scopesByName:    make(map[string]category.Scope),
		categories:      make(map[category.CategoryID]category.Category),
		items:           make(map[category.CategoryItemID]category.CategoryItem),
		scopeCategories: shared.NewOneToMany[category.ScopeID, category.CategoryID](),
		childCategories: shared.NewOneToMany[category.CategoryID, category.CategoryID](),
		childItems:      shared.NewOneToMany[category.CategoryID, category.CategoryItemID](),
		itemIdentifiers: shared.NewManyToMany[category.CategoryID, category.CategoryItemIdentifier](),
		foldNames:       true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) nameKey(name string) string {
	if c.foldNames {
		return strings.ToLower(name)
	}
	return name
}

// Stats is a point-in-time count of cached entities.
type Stats struct {
	Scopes        int `json:"scopes"`
	Categories    int `json:"categories"`
	CategoryItems int `json:"categoryItems"`
}

// Stats returns the number of cached entities per kind.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Scopes: len(c.scopes), Categories: len(c.categories), CategoryItems: len(c.items)}
}

// LoadInitialData reads all three entity kinds concurrently and applies them
// as one batch. Readers never observe a partially loaded cache.
func (c *Cache) LoadInitialData(ctx context.Context, source Source) error {
	if err := source.validate(); err != nil {
		return err
	}

	var (
		scopes     []category.Scope
		categories []category.Category
		items      []category.CategoryItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scopes, err = source.Scopes.ReadAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = source.Categories.ReadAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = source.CategoryItems.ReadAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyScopes(scopes, nil)
	c.applyCategories(categories, nil)
	c.applyItems(items, nil)
	return nil
}

// UpdateScopes inserts or replaces updated and removes deleted. Deleting a
// scope detaches its categories from the scope index without removing them.
func (c *Cache) UpdateScopes(updated, deleted []category.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyScopes(updated, deleted)
}

// UpdateCategories inserts or replaces updated and removes deleted.
func (c *Cache) UpdateCategories(updated, deleted []category.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyCategories(updated, deleted)
}

// UpdateCategoryItems inserts or replaces updated and removes deleted.
func (c *Cache) UpdateCategoryItems(updated, deleted []category.CategoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyItems(updated, deleted)
}

func (c *Cache) applyScopes(updated, deleted []category.Scope) {
	for _, s := range updated {
		if s.ID.IsEmpty() {
			continue
		}
		if old, ok := c.scopes[s.ID]; ok {
			c.evictScopeName(old)
		}
		c.scopes[s.ID] = s
		c.scopesByName[c.nameKey(s.Name)] = s
	}
	for _, s := range deleted {
		old, ok := c.scopes[s.ID]
		if !ok {
			continue
		}
		delete(c.scopes, s.ID)
		c.evictScopeName(old)
		c.scopeCategories.RemoveParent(s.ID)
	}
}

func (c *Cache) evictScopeName(s category.Scope) {
	key := c.nameKey(s.Name)
	if current, ok := c.scopesByName[key]; ok && current.ID == s.ID {
		delete(c.scopesByName, key)
	}
}

func (c *Cache) applyCategories(updated, deleted []category.Category) {
	for _, cat := range updated {
		if cat.ID.IsEmpty() {
			continue
		}
		if _, ok := c.categories[cat.ID]; ok {
			c.scopeCategories.RemoveChild(cat.ID)
			c.childCategories.RemoveChild(cat.ID)
		}
		c.categories[cat.ID] = cat
		if !cat.Scope.IsEmpty() {
			c.scopeCategories.AddOrUpdate(cat.Scope, cat.ID)
		}
		if !cat.ParentCategory.IsEmpty() {
			c.childCategories.AddOrUpdate(cat.ParentCategory, cat.ID)
		}
	}
	for _, cat := range deleted {
		if _, ok := c.categories[cat.ID]; !ok {
			continue
		}
		delete(c.categories, cat.ID)
		c.scopeCategories.RemoveChild(cat.ID)
		c.childCategories.RemoveChild(cat.ID)
		c.childCategories.RemoveParent(cat.ID)
	}
}

func (c *Cache) applyItems(updated, deleted []category.CategoryItem) {
	for _, item := range updated {
		if item.ID.IsEmpty() {
			continue
		}
		if old, ok := c.items[item.ID]; ok {
			c.evictItem(old)
		}
		c.items[item.ID] = item
		c.childItems.AddOrUpdate(item.Category, item.ID)
		c.itemIdentifiers.TryAdd(item.Category, item.Identifier())
	}
	for _, item := range deleted {
		old, ok := c.items[item.ID]
		if !ok {
			continue
		}
		c.evictItem(old)
		delete(c.items, item.ID)
	}
}

// evictItem removes item from the indexes. The identifier edge survives when
// another item under the same category links the same resource.
func (c *Cache) evictItem(item category.CategoryItem) {
	c.childItems.RemoveChild(item.ID)
	identifier := item.Identifier()
	for _, sibling := range c.childItems.GetChildren(item.Category) {
		if c.items[sibling].Identifier() == identifier {
			return
		}
	}
	c.itemIdentifiers.TryRemove(item.Category, identifier)
}

// Scopes returns every cached scope ordered by name.
func (c *Cache) Scopes() []category.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]category.Scope, 0, len(c.scopes))
	for _, s := range c.scopes {
		result = append(result, s)
	}
	shared.SortNatural(result, func(s category.Scope) string { return s.Name + "\x00" + string(s.ID) })
	return result
}

// Categories returns every cached category ordered by name.
func (c *Cache) Categories() []category.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]category.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		result = append(result, cat)
	}
	category.SortCategories(result)
	return result
}

// CategoryItems returns every cached item.
func (c *Cache) CategoryItems() []category.CategoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]category.CategoryItem, 0, len(c.items))
	for _, item := range c.items {
		result = append(result, item)
	}
	sortItems(result)
	return result
}

// TryGetScope looks a scope up by id.
func (c *Cache) TryGetScope(id category.ScopeID) (category.Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopes[id]
	return s, ok
}

// GetScope looks a scope up by id and fails with NOT_FOUND when absent.
func (c *Cache) GetScope(id category.ScopeID) (category.Scope, error) {
	if id.IsEmpty() {
		return category.Scope{}, emptyArgument("scope id")
	}
	s, ok := c.TryGetScope(id)
	if !ok {
		return s, notFound("scope", string(id))
	}
	return s, nil
}

// TryGetScopeByName looks a scope up by name.
func (c *Cache) TryGetScopeByName(name string) (category.Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopesByName[c.nameKey(name)]
	return s, ok
}

// GetScopeByName looks a scope up by name and fails with NOT_FOUND when
// absent.
func (c *Cache) GetScopeByName(name string) (category.Scope, error) {
	if strings.TrimSpace(name) == "" {
		return category.Scope{}, emptyArgument("scope name")
	}
	s, ok := c.TryGetScopeByName(name)
	if !ok {
		return s, notFound("scope", name)
	}
	return s, nil
}

// TryGetCategory looks a category up by id.
func (c *Cache) TryGetCategory(id category.CategoryID) (category.Category, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cat, ok := c.categories[id]
	return cat, ok
}

// GetCategory looks a category up by id and fails with NOT_FOUND when absent.
func (c *Cache) GetCategory(id category.CategoryID) (category.Category, error) {
	if id.IsEmpty() {
		return category.Category{}, emptyArgument("category id")
	}
	cat, ok := c.TryGetCategory(id)
	if !ok {
		return cat, notFound("category", string(id))
	}
	return cat, nil
}

// TryGetCategoryItem looks an item up by id.
func (c *Cache) TryGetCategoryItem(id category.CategoryItemID) (category.CategoryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	return item, ok
}

// GetCategoryItem looks an item up by id and fails with NOT_FOUND when absent.
func (c *Cache) GetCategoryItem(id category.CategoryItemID) (category.CategoryItem, error) {
	if id.IsEmpty() {
		return category.CategoryItem{}, emptyArgument("category item id")
	}
	item, ok := c.TryGetCategoryItem(id)
	if !ok {
		return item, notFound("category item", string(id))
	}
	return item, nil
}

// GetCategoriesForScope returns the categories of a scope.
func (c *Cache) GetCategoriesForScope(scopeID category.ScopeID) ([]category.Category, error) {
	if scopeID.IsEmpty() {
		return nil, emptyArgument("scope id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.categoriesForScope(scopeID, false), nil
}

// GetCategoriesForScopeName returns the categories of the scope called name.
func (c *Cache) GetCategoriesForScopeName(name string) ([]category.Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, emptyArgument("scope name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopesByName[c.nameKey(name)]
	if !ok {
		return nil, notFound("scope", name)
	}
	return c.categoriesForScope(s.ID, false), nil
}

// GetRootCategoriesForScope returns the categories of a scope that have no
// parent.
func (c *Cache) GetRootCategoriesForScope(scopeID category.ScopeID) ([]category.Category, error) {
	if scopeID.IsEmpty() {
		return nil, emptyArgument("scope id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.categoriesForScope(scopeID, true), nil
}

// GetRootCategoriesForScopeName returns the root categories of the scope
// called name.
func (c *Cache) GetRootCategoriesForScopeName(name string) ([]category.Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, emptyArgument("scope name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopesByName[c.nameKey(name)]
	if !ok {
		return nil, notFound("scope", name)
	}
	return c.categoriesForScope(s.ID, true), nil
}

func (c *Cache) categoriesForScope(scopeID category.ScopeID, rootsOnly bool) []category.Category {
	ids := c.scopeCategories.GetChildren(scopeID)
	result := make([]category.Category, 0, len(ids))
	for _, id := range ids {
		cat, ok := c.categories[id]
		if !ok || cat.Scope != scopeID {
			continue
		}
		if rootsOnly && !cat.IsRootCategory() {
			continue
		}
		result = append(result, cat)
	}
	category.SortCategories(result)
	return result
}

func sortItems(items []category.CategoryItem) {
	shared.SortNatural(items, func(i category.CategoryItem) string {
		return i.Identifier().String() + "\x00" + string(i.ID)
	})
}

func emptyArgument(name string) error {
	return apperrors.Validation("EMPTY_ARGUMENT", name+" must not be empty").Build()
}

func notFound(resource, key string) error {
	return apperrors.NotFound("NOT_FOUND", resource+" not found").
		WithResource(resource).
		WithDetails(key).
		Build()
}
