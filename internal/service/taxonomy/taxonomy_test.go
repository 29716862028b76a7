package taxonomy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxonomy-backend/internal/cache"
	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/infrastructure/persistence/memory"
	"taxonomy-backend/internal/query"
	"taxonomy-backend/internal/repository"
)

func newAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()
	store := memory.NewStore(nil)
	return NewAPI(store, nil, 0), store
}

func mustScope(t *testing.T, api *API, name string) category.Scope {
	t.Helper()
	created, err := api.Scopes.Create(context.Background(), category.Scope{Name: name})
	require.NoError(t, err)
	return created[0]
}

func mustCategory(t *testing.T, api *API, scope category.Scope, name string, parent category.CategoryID) category.Category {
	t.Helper()
	created, err := api.Categories.Create(context.Background(), category.Category{
		Name:           name,
		Scope:          scope.ID,
		ParentCategory: parent,
	})
	require.NoError(t, err)
	return created[0]
}

func TestScopes_DuplicateNamesIgnoreCase(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	mustScope(t, api, "Network")

	_, err := api.Scopes.Create(ctx, category.Scope{Name: "network"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = api.Scopes.Create(ctx, category.Scope{Name: "A"}, category.Scope{Name: "a"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = api.Scopes.Create(ctx, category.Scope{Name: " padded"})
	assert.True(t, apperrors.IsValidation(err))

	found, err := api.Scopes.GetByName(ctx, "NETWORK")
	require.NoError(t, err)
	assert.Equal(t, "Network", found.Name)
}

func TestScopes_RenameKeepsOwnName(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")

	s.Name = "NETWORK"
	_, err := api.Scopes.Update(ctx, s)
	require.NoError(t, err)

	got, err := api.Scopes.ReadByID(ctx, string(s.ID))
	require.NoError(t, err)
	assert.Equal(t, "NETWORK", got.Name)
}

func TestScopes_DeleteBlockedWhileInUse(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	c := mustCategory(t, api, s, "Routers", "")

	err := api.Scopes.Delete(ctx, s)
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, api.Categories.Delete(ctx, c))
	require.NoError(t, api.Scopes.Delete(ctx, s))

	_, ok, err := api.Scopes.TryReadByID(ctx, string(s.ID))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCategories_RootAndValidation(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	other := mustScope(t, api, "Other")

	root := mustCategory(t, api, s, "Root", "")
	child := mustCategory(t, api, s, "Child", root.ID)
	grandchild := mustCategory(t, api, s, "Grandchild", child.ID)

	assert.Equal(t, root.ID, root.RootCategory)
	assert.Equal(t, root.ID, grandchild.RootCategory)

	_, err := api.Categories.Create(ctx, category.Category{Name: "child", Scope: s.ID, ParentCategory: root.ID})
	assert.True(t, apperrors.IsConflict(err), "sibling names are unique ignoring case")

	_, err = api.Categories.Create(ctx, category.Category{Name: "Child", Scope: s.ID, ParentCategory: child.ID})
	assert.NoError(t, err, "the same name is allowed under another parent")

	_, err = api.Categories.Create(ctx, category.Category{Name: "X", Scope: other.ID, ParentCategory: root.ID})
	assert.True(t, apperrors.IsValidation(err))

	_, err = api.Categories.Create(ctx, category.Category{Name: "X", Scope: s.ID, ParentCategory: "missing"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = api.Categories.Create(ctx, category.Category{Name: "X", Scope: "missing"})
	assert.True(t, apperrors.IsNotFound(err))

	root.ParentCategory = grandchild.ID
	_, err = api.Categories.Update(ctx, root)
	assert.True(t, apperrors.IsCircularReference(err))
}

func TestCategories_MoveRefreshesDescendantRoots(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	a := mustCategory(t, api, s, "A", "")
	b := mustCategory(t, api, s, "B", "")
	x := mustCategory(t, api, s, "X", a.ID)
	y := mustCategory(t, api, s, "Y", x.ID)

	x.ParentCategory = b.ID
	_, err := api.Categories.Update(ctx, x)
	require.NoError(t, err)

	got, err := api.Categories.ReadByID(ctx, string(y.ID))
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.RootCategory)

	underB, err := api.Categories.GetByRootCategory(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, underB, 3)

	path, err := api.Categories.GetAncestorPath(ctx, y.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []category.CategoryID{b.ID, x.ID, y.ID}, []category.CategoryID{path[0].ID, path[1].ID, path[2].ID})
}

func TestCategories_DeleteCascadesItems(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	c := mustCategory(t, api, s, "Routers", "")
	keep := mustCategory(t, api, s, "Switches", "")

	require.NoError(t, api.CategoryItems.AddChildItems(ctx, c.ID,
		category.CategoryItem{ModuleID: "m", InstanceID: "1"},
		category.CategoryItem{ModuleID: "m", InstanceID: "2"},
	))
	require.NoError(t, api.CategoryItems.AddChildItems(ctx, keep.ID, category.CategoryItem{ModuleID: "m", InstanceID: "1"}))

	require.NoError(t, api.Categories.Delete(ctx, c))

	n, err := api.CategoryItems.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCategories_Trees(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	r1 := mustCategory(t, api, s, "Root 10", "")
	mustCategory(t, api, s, "Root 2", "")
	child := mustCategory(t, api, s, "Child", r1.ID)
	require.NoError(t, api.CategoryItems.AddChildItems(ctx, child.ID, category.CategoryItem{ModuleID: "m", InstanceID: "1"}))

	tree, err := api.Categories.GetTree(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, tree.Category().ID)
	assert.Len(t, tree.DescendantItems(), 1)

	forest, err := api.Categories.GetTreeForScope(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, category.DefaultRootName, forest.Category().Name)
	roots := forest.ChildCategories()
	require.Len(t, roots, 2)
	assert.Equal(t, "Root 2", roots[0].Category().Name)

	desc, err := api.Categories.GetDescendantCategories(ctx, r1.ID)
	require.NoError(t, err)
	assert.Len(t, desc, 1)
}

func TestItems_ChildOperations(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	c := mustCategory(t, api, s, "Routers", "")
	other := mustCategory(t, api, s, "Other", "")

	one := category.CategoryItem{ModuleID: "m", InstanceID: "1"}
	two := category.CategoryItem{ModuleID: "m", InstanceID: "2"}
	three := category.CategoryItem{ModuleID: "m", InstanceID: "3"}

	require.NoError(t, api.CategoryItems.AddChildItems(ctx, c.ID, one, two, one))
	require.NoError(t, api.CategoryItems.AddChildItems(ctx, c.ID, two))
	assertIdentifiers(t, api, c.ID, "m/1", "m/2")

	require.NoError(t, api.CategoryItems.ReplaceChildItems(ctx, c.ID, two, three))
	assertIdentifiers(t, api, c.ID, "m/2", "m/3")

	require.NoError(t, api.CategoryItems.RemoveChildItems(ctx, c.ID, three))
	assertIdentifiers(t, api, c.ID, "m/2")

	misplaced := category.CategoryItem{Category: other.ID, ModuleID: "m", InstanceID: "9"}
	err := api.CategoryItems.AddChildItems(ctx, c.ID, misplaced)
	assert.True(t, apperrors.IsValidation(err))

	err = api.CategoryItems.AddChildItems(ctx, "missing", one)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, api.CategoryItems.ClearChildItems(ctx, c.ID))
	assertIdentifiers(t, api, c.ID)
}

func assertIdentifiers(t *testing.T, api *API, id category.CategoryID, want ...string) {
	t.Helper()
	items, err := api.CategoryItems.GetChildItems(context.Background(), id)
	require.NoError(t, err)
	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.Identifier().String())
	}
	assert.ElementsMatch(t, want, got)
}

func TestRepository_ReadsAndQueries(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	s := mustScope(t, api, "Network")
	var created []category.Category
	for i := 1; i <= 12; i++ {
		created = append(created, mustCategory(t, api, s, fmt.Sprintf("Cat %02d", i), ""))
	}

	byNames, err := api.Categories.ReadByNames(ctx, []string{"Cat 01", "Cat 05", "", "Cat 05"})
	require.NoError(t, err)
	assert.Len(t, byNames, 2)

	byIDs, err := api.Categories.ReadByIDs(ctx, []string{string(created[0].ID), string(created[1].ID)})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	var pages int
	err = api.Categories.ReadPaged(ctx, repository.True(), 5, func(page []category.Category) error {
		pages++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	top, err := api.Categories.Query().
		Where(query.Prop("Scope").Eq(s.ID)).
		OrderByDescending("Name").
		Take(3).
		ToList(ctx)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "Cat 12", top[0].Name)

	n, err := api.Categories.Query().Count(ctx, query.Prop("Name").Contains("Cat 1"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := api.Categories.Query().All(ctx, query.Prop("RootCategory").Ne(""))
	require.NoError(t, err)
	assert.True(t, ok)

	scopes, err := api.Scopes.Query().ToList(ctx)
	require.NoError(t, err)
	assert.Len(t, scopes, 1, "queries are restricted to one kind")

	_, err = api.CategoryItems.ReadByName(ctx, "x")
	assert.Error(t, err)
}

func TestRepository_BatchedReadMatchesPerKeyUnion(t *testing.T) {
	ctx := context.Background()
	api, store := newAPI(t)
	s := mustScope(t, api, "Network")
	c := mustCategory(t, api, s, "Routers", "")

	var records []repository.Record
	var keys []category.CategoryID
	for i := 0; i < 1200; i++ {
		id := category.CategoryID(fmt.Sprintf("k%04d", i))
		keys = append(keys, id)
		if i%3 == 0 {
			continue
		}
		records = append(records, CategoryItemCodec.record(category.CategoryItem{
			ID:         category.CategoryItemID(fmt.Sprintf("item-%04d", i)),
			Category:   id,
			ModuleID:   "m",
			InstanceID: fmt.Sprint(i),
		}))
	}
	_, err := store.Create(ctx, records)
	require.NoError(t, err)
	require.NoError(t, api.CategoryItems.AddChildItems(ctx, c.ID, category.CategoryItem{ModuleID: "x", InstanceID: "y"}))

	got, err := api.CategoryItems.GetChildItemsForCategories(ctx, append(keys, keys[:10]...))
	require.NoError(t, err)

	var want []category.CategoryItem
	for _, k := range keys {
		items, err := api.CategoryItems.GetChildItems(ctx, k)
		require.NoError(t, err)
		want = append(want, items...)
	}
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, 800)
}

func TestCacheSource_SubscriptionLiveness(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)
	mustScope(t, api, "Existing")

	observer, err := cache.NewObserver(cache.New(), api.CacheSource())
	require.NoError(t, err)
	require.NoError(t, observer.Subscribe(ctx))
	require.NoError(t, observer.LoadInitialData(ctx))

	_, ok := observer.Cache().TryGetScopeByName("Existing")
	assert.True(t, ok)

	s := mustScope(t, api, "Fresh")
	_, ok = observer.Cache().TryGetScopeByName("Fresh")
	assert.True(t, ok)

	c := mustCategory(t, api, s, "Routers", "")
	require.NoError(t, api.CategoryItems.AddChildItems(ctx, c.ID, category.CategoryItem{ModuleID: "m", InstanceID: "1"}))
	assert.True(t, observer.Cache().ContainsItem(c.ID, category.CategoryItemIdentifier{ModuleID: "m", InstanceID: "1"}))

	require.NoError(t, observer.Unsubscribe())
	mustScope(t, api, "Late")
	_, ok = observer.Cache().TryGetScopeByName("Late")
	assert.False(t, ok)
}
