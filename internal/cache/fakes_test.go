package cache

import (
	"context"
	"sync"

	"taxonomy-backend/internal/domain/category"
	"taxonomy-backend/internal/repository"
)

type fakeSubscription struct {
	close func()
}

func (s *fakeSubscription) Close() error {
	s.close()
	return nil
}

type fakeEntitySource[T any] struct {
	mu       sync.Mutex
	all      []T
	readErr  error
	subErr   error
	next     int
	handlers map[int]func(category.ChangeEvent[T])
}

func newFakeEntitySource[T any](all ...T) *fakeEntitySource[T] {
	return &fakeEntitySource[T]{all: all, handlers: make(map[int]func(category.ChangeEvent[T]))}
}

func (s *fakeEntitySource[T]) ReadAll(context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.all...), s.readErr
}

func (s *fakeEntitySource[T]) Subscribe(_ context.Context, handler func(category.ChangeEvent[T])) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	id := s.next
	s.next++
	s.handlers[id] = handler
	return &fakeSubscription{close: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}}, nil
}

func (s *fakeEntitySource[T]) publish(e category.ChangeEvent[T]) {
	s.mu.Lock()
	handlers := make([]func(category.ChangeEvent[T]), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

func (s *fakeEntitySource[T]) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

type fakeSource struct {
	scopes     *fakeEntitySource[category.Scope]
	categories *fakeEntitySource[category.Category]
	items      *fakeEntitySource[category.CategoryItem]
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		scopes:     newFakeEntitySource[category.Scope](),
		categories: newFakeEntitySource[category.Category](),
		items:      newFakeEntitySource[category.CategoryItem](),
	}
}

func (f *fakeSource) source() Source {
	return Source{Scopes: f.scopes, Categories: f.categories, CategoryItems: f.items}
}

func scope(id, name string) category.Scope {
	return category.Scope{ID: category.ScopeID(id), Name: name}
}

func cat(id, name, parent, scopeID string) category.Category {
	return category.Category{
		ID:             category.CategoryID(id),
		Name:           name,
		ParentCategory: category.CategoryID(parent),
		Scope:          category.ScopeID(scopeID),
	}
}

func item(id, categoryID, module, instance string) category.CategoryItem {
	return category.CategoryItem{
		ID:         category.CategoryItemID(id),
		Category:   category.CategoryID(categoryID),
		ModuleID:   module,
		InstanceID: instance,
	}
}

func categoryIDs(categories []category.Category) []string {
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = string(c.ID)
	}
	return ids
}

func itemIDs(items []category.CategoryItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = string(it.ID)
	}
	return ids
}

// hierarchy builds:
//
//	s1: root -> child -> grandchild, root -> sibling
//	items: r1 on root, c1 on child, g1 and g2 on grandchild
func hierarchy(t interface{ Helper() }) *Cache {
	t.Helper()
	c := New()
	c.UpdateScopes([]category.Scope{scope("s1", "Network")}, nil)
	c.UpdateCategories([]category.Category{
		cat("root", "Root A", "", "s1"),
		cat("child", "Child", "root", "s1"),
		cat("grandchild", "Grandchild", "child", "s1"),
		cat("sibling", "Sibling", "root", "s1"),
	}, nil)
	c.UpdateCategoryItems([]category.CategoryItem{
		item("r1", "root", "m", "1"),
		item("c1", "child", "m", "2"),
		item("g1", "grandchild", "m", "3"),
		item("g2", "grandchild", "m", "4"),
	}, nil)
	return c
}
