package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
)

func TestCache_ScopeLookups(t *testing.T) {
	c := New()
	c.UpdateScopes([]category.Scope{scope("s1", "Network"), scope("s2", "Storage")}, nil)

	s, err := c.GetScope("s1")
	require.NoError(t, err)
	assert.Equal(t, "Network", s.Name)

	s, ok := c.TryGetScopeByName("network")
	require.True(t, ok)
	assert.Equal(t, category.ScopeID("s1"), s.ID)

	_, err = c.GetScope("missing")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = c.GetScopeByName("Missing")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = c.GetScope("")
	assert.True(t, apperrors.IsValidation(err))

	assert.Len(t, c.Scopes(), 2)
}

func TestCache_CaseSensitiveScopeNames(t *testing.T) {
	c := New(WithCaseInsensitiveScopeNames(false))
	c.UpdateScopes([]category.Scope{scope("s1", "Network")}, nil)

	_, ok := c.TryGetScopeByName("network")
	assert.False(t, ok)
	_, ok = c.TryGetScopeByName("Network")
	assert.True(t, ok)
}

func TestCache_ScopeRenameEvictsOldName(t *testing.T) {
	c := New()
	c.UpdateScopes([]category.Scope{scope("s1", "Network")}, nil)
	c.UpdateScopes([]category.Scope{scope("s1", "Connectivity")}, nil)

	_, ok := c.TryGetScopeByName("Network")
	assert.False(t, ok)
	_, ok = c.TryGetScopeByName("Connectivity")
	assert.True(t, ok)
}

func TestCache_DeleteScopeDetachesCategories(t *testing.T) {
	c := hierarchy(t)
	c.UpdateScopes(nil, []category.Scope{scope("s1", "Network")})

	_, ok := c.TryGetScope("s1")
	assert.False(t, ok)
	cats, err := c.GetCategoriesForScope("s1")
	require.NoError(t, err)
	assert.Empty(t, cats)

	_, ok = c.TryGetCategory("root")
	assert.True(t, ok, "categories are detached, not deleted")
}

func TestCache_CategoriesForScope(t *testing.T) {
	c := hierarchy(t)
	c.UpdateScopes([]category.Scope{scope("s2", "Other")}, nil)
	c.UpdateCategories([]category.Category{cat("other", "Other root", "", "s2")}, nil)

	all, err := c.GetCategoriesForScope("s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "child", "grandchild", "sibling"}, categoryIDs(all))

	roots, err := c.GetRootCategoriesForScopeName("NETWORK")
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, categoryIDs(roots))

	byName, err := c.GetCategoriesForScopeName("Other")
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, categoryIDs(byName))

}

func TestCache_CategoriesForUnknownScopeName(t *testing.T) {
	c := hierarchy(t)

	unknown, err := c.GetCategoriesForScopeName("nope")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Nil(t, unknown)

	unknown, err = c.GetRootCategoriesForScopeName("nope")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Nil(t, unknown)

	_, err = c.GetRootCategoriesForScopeName(" ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestCache_ReapplyIsIdempotent(t *testing.T) {
	updated := []category.Category{
		cat("a", "A", "", "s1"),
		cat("b", "B", "a", "s1"),
	}
	items := []category.CategoryItem{item("i1", "b", "m", "1"), item("i2", "b", "m", "1")}
	deleted := []category.Category{cat("gone", "Gone", "", "s1")}

	once := New()
	once.UpdateCategories(updated, deleted)
	once.UpdateCategoryItems(items, nil)

	twice := New()
	for range 2 {
		twice.UpdateCategories(updated, deleted)
		twice.UpdateCategoryItems(items, nil)
	}

	assert.Equal(t, once.Stats(), twice.Stats())
	assert.Equal(t, once.Categories(), twice.Categories())
	assert.Equal(t, once.CategoryItems(), twice.CategoryItems())

	for _, c := range []*Cache{once, twice} {
		children, err := c.GetChildCategories("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, categoryIDs(children))
		assert.True(t, c.ContainsItem("b", category.CategoryItemIdentifier{ModuleID: "m", InstanceID: "1"}))
	}
}

func TestCache_ReparentMovesCategory(t *testing.T) {
	c := New()
	c.UpdateCategories([]category.Category{
		cat("A", "A", "", "s1"),
		cat("B", "B", "", "s1"),
		cat("x", "X", "A", "s1"),
	}, nil)

	c.UpdateCategories([]category.Category{cat("x", "X", "B", "s1")}, nil)

	underA, err := c.GetChildCategories("A")
	require.NoError(t, err)
	assert.Empty(t, underA)
	underB, err := c.GetChildCategories("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, categoryIDs(underB))
}

func TestCache_ScopeChangeMovesCategory(t *testing.T) {
	c := New()
	c.UpdateCategories([]category.Category{cat("x", "X", "", "s1")}, nil)
	c.UpdateCategories([]category.Category{cat("x", "X", "", "s2")}, nil)

	inS1, _ := c.GetCategoriesForScope("s1")
	inS2, _ := c.GetCategoriesForScope("s2")
	assert.Empty(t, inS1)
	assert.Equal(t, []string{"x"}, categoryIDs(inS2))
}

func TestCache_ItemMoveAndIdentifierIndex(t *testing.T) {
	c := New()
	id := category.CategoryItemIdentifier{ModuleID: "m", InstanceID: "1"}
	c.UpdateCategoryItems([]category.CategoryItem{
		item("i1", "a", "m", "1"),
		item("i2", "a", "m", "1"),
	}, nil)

	c.UpdateCategoryItems(nil, []category.CategoryItem{item("i1", "a", "m", "1")})
	assert.True(t, c.ContainsItem("a", id), "another item still links the resource")

	c.UpdateCategoryItems([]category.CategoryItem{item("i2", "b", "m", "1")}, nil)
	assert.False(t, c.ContainsItem("a", id))
	assert.True(t, c.ContainsItem("b", id))
	assert.False(t, c.HasChildItems("a"))
}

func TestCache_DeleteCategoryDetachesBothSides(t *testing.T) {
	c := hierarchy(t)
	c.UpdateCategories(nil, []category.Category{cat("child", "Child", "root", "s1")})

	children, err := c.GetChildCategories("root")
	require.NoError(t, err)
	assert.Equal(t, []string{"sibling"}, categoryIDs(children))

	assert.False(t, c.HasChildCategories("child"))
	_, err = c.GetSubtree("child")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCache_LoadInitialData(t *testing.T) {
	src := newFakeSource()
	src.scopes.all = []category.Scope{scope("s1", "Network")}
	src.categories.all = []category.Category{cat("root", "Root", "", "s1"), cat("leaf", "Leaf", "root", "s1")}
	src.items.all = []category.CategoryItem{item("i1", "leaf", "m", "1")}

	c := New()
	require.NoError(t, c.LoadInitialData(context.Background(), src.source()))

	assert.Equal(t, Stats{Scopes: 1, Categories: 2, CategoryItems: 1}, c.Stats())
	items, err := c.GetDescendantItems("root")
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, itemIDs(items))
}

func TestCache_LoadInitialDataFailureLeavesCacheUntouched(t *testing.T) {
	src := newFakeSource()
	src.scopes.all = []category.Scope{scope("s1", "Network")}
	src.items.readErr = errors.New("store down")

	c := New()
	err := c.LoadInitialData(context.Background(), src.source())
	require.Error(t, err)
	assert.Equal(t, Stats{}, c.Stats())

	err = c.LoadInitialData(context.Background(), Source{})
	assert.True(t, apperrors.IsValidation(err))
}
