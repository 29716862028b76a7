package taxonomy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// CategoryRepository stores categories. Names are unique among siblings of
// the same scope, ignoring case. RootCategory is computed on every write.
type CategoryRepository struct {
	*Repository[category.Category]
	scopes *Repository[category.Scope]
	items  *Repository[category.CategoryItem]
}

// Create stores new categories. Missing ids are generated.
func (r *CategoryRepository) Create(ctx context.Context, categories ...category.Category) ([]category.Category, error) {
	prepared, err := r.prepare(ctx, r.withIDs(categories))
	if err != nil {
		return nil, err
	}
	return r.create(ctx, prepared)
}

// Update replaces existing categories. Descendants of a moved category get
// their RootCategory refreshed.
func (r *CategoryRepository) Update(ctx context.Context, categories ...category.Category) ([]category.Category, error) {
	prepared, err := r.prepare(ctx, categories)
	if err != nil {
		return nil, err
	}
	saved, err := r.update(ctx, prepared)
	if err != nil {
		return nil, err
	}
	return saved, r.refreshDescendantRoots(ctx, saved)
}

// CreateOrUpdate stores categories whether or not they exist.
func (r *CategoryRepository) CreateOrUpdate(ctx context.Context, categories ...category.Category) ([]category.Category, error) {
	prepared, err := r.prepare(ctx, r.withIDs(categories))
	if err != nil {
		return nil, err
	}
	saved, err := r.upsert(ctx, prepared)
	if err != nil {
		return nil, err
	}
	return saved, r.refreshDescendantRoots(ctx, saved)
}

// Delete removes categories together with the items attached to them.
// Child categories are kept; they become roots of their own trees.
func (r *CategoryRepository) Delete(ctx context.Context, categories ...category.Category) error {
	if len(categories) == 0 {
		return nil
	}
	for _, c := range categories {
		if c.ID.IsEmpty() {
			return apperrors.Validation("EMPTY_ID", "category id must not be empty").Build()
		}
	}
	items, err := repository.RetrieveFiltered(ctx, ids(CategoryCodec, categories),
		func(id string) repository.Filter { return repository.Field(FieldCategory).Equal(id) },
		r.items.Read,
		CategoryItemCodec.ID,
	)
	if err != nil {
		return err
	}
	if err := r.items.delete(ctx, items); err != nil {
		return err
	}
	return r.delete(ctx, categories)
}

// GetByScope returns the categories of a scope.
func (r *CategoryRepository) GetByScope(ctx context.Context, scopeID category.ScopeID) ([]category.Category, error) {
	if scopeID.IsEmpty() {
		return nil, apperrors.Validation("EMPTY_ID", "scope id must not be empty").Build()
	}
	return r.Read(ctx, repository.Field(FieldScope).Equal(string(scopeID)))
}

// GetByRootCategory returns every category whose tree is rooted at rootID,
// the root included.
func (r *CategoryRepository) GetByRootCategory(ctx context.Context, rootID category.CategoryID) ([]category.Category, error) {
	if rootID.IsEmpty() {
		return nil, apperrors.Validation("EMPTY_ID", "category id must not be empty").Build()
	}
	return r.Read(ctx, repository.Field(FieldRootCategory).Equal(string(rootID)))
}

// GetChildCategories returns the direct children of parentID.
func (r *CategoryRepository) GetChildCategories(ctx context.Context, parentID category.CategoryID) ([]category.Category, error) {
	if parentID.IsEmpty() {
		return nil, apperrors.Validation("EMPTY_ID", "category id must not be empty").Build()
	}
	return r.Read(ctx, repository.Field(FieldParentCategory).Equal(string(parentID)))
}

// GetDescendantCategories returns every category below parentID, one store
// round-trip per level, ordered by name.
func (r *CategoryRepository) GetDescendantCategories(ctx context.Context, parentID category.CategoryID) ([]category.Category, error) {
	if parentID.IsEmpty() {
		return nil, apperrors.Validation("EMPTY_ID", "category id must not be empty").Build()
	}
	var result []category.Category
	visited := map[category.CategoryID]struct{}{parentID: {}}
	frontier := []string{string(parentID)}
	for len(frontier) > 0 {
		children, err := repository.RetrieveFiltered(ctx, frontier,
			func(id string) repository.Filter { return repository.Field(FieldParentCategory).Equal(id) },
			r.Read,
			CategoryCodec.ID,
		)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, c := range children {
			if _, seen := visited[c.ID]; seen {
				continue
			}
			visited[c.ID] = struct{}{}
			result = append(result, c)
			frontier = append(frontier, string(c.ID))
		}
	}
	category.SortCategories(result)
	return result, nil
}

// GetAncestorPath returns the categories from the root down to categoryID.
func (r *CategoryRepository) GetAncestorPath(ctx context.Context, categoryID category.CategoryID) ([]category.Category, error) {
	var path []category.Category
	visited := make(map[category.CategoryID]struct{})
	for current := categoryID; !current.IsEmpty(); {
		if _, seen := visited[current]; seen {
			return nil, circularReference(current)
		}
		visited[current] = struct{}{}

		c, ok, err := r.TryReadByID(ctx, string(current))
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		path = append([]category.Category{c}, path...)
		current = c.ParentCategory
	}
	return path, nil
}

// GetTree materializes the tree rooted at rootID.
func (r *CategoryRepository) GetTree(ctx context.Context, rootID category.CategoryID) (*category.CategoryNode, error) {
	root, err := r.ReadByID(ctx, string(rootID))
	if err != nil {
		return nil, err
	}
	descendants, err := r.GetDescendantCategories(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return r.tree(ctx, append([]category.Category{root}, descendants...))
}

// GetTreeForScope materializes every category of a scope. Several roots are
// wrapped in a synthetic root node.
func (r *CategoryRepository) GetTreeForScope(ctx context.Context, scopeID category.ScopeID) (*category.CategoryNode, error) {
	categories, err := r.GetByScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	return r.tree(ctx, categories)
}

func (r *CategoryRepository) tree(ctx context.Context, categories []category.Category) (*category.CategoryNode, error) {
	items, err := repository.RetrieveFiltered(ctx, ids(CategoryCodec, categories),
		func(id string) repository.Filter { return repository.Field(FieldCategory).Equal(id) },
		r.items.Read,
		CategoryItemCodec.ID,
	)
	if err != nil {
		return nil, err
	}
	return category.ToTree(categories, items)
}

type siblingKey struct {
	scope  category.ScopeID
	parent category.CategoryID
}

// prepare validates a batch and returns it with RootCategory filled in.
func (r *CategoryRepository) prepare(ctx context.Context, batch []category.Category) ([]category.Category, error) {
	inBatch := make(map[category.CategoryID]category.Category, len(batch))
	scopeIDs := make([]string, 0, len(batch))
	for _, c := range batch {
		if err := category.Validate(c); err != nil {
			return nil, err
		}
		if c.Scope.IsEmpty() {
			return nil, apperrors.Validation("MISSING_SCOPE", "category needs a scope").WithDetails(c.String()).Build()
		}
		if _, dup := inBatch[c.ID]; dup {
			return nil, apperrors.Validation("DUPLICATE_ID", "category appears twice in the batch").WithDetails(string(c.ID)).Build()
		}
		inBatch[c.ID] = c
		scopeIDs = append(scopeIDs, string(c.Scope))
	}

	if err := r.requireScopes(ctx, scopeIDs); err != nil {
		return nil, err
	}

	stored := make(map[category.CategoryID]category.Category)
	lookup := func(id category.CategoryID) (category.Category, bool, error) {
		if c, ok := inBatch[id]; ok {
			return c, true, nil
		}
		if c, ok := stored[id]; ok {
			return c, true, nil
		}
		c, ok, err := r.TryReadByID(ctx, string(id))
		if ok {
			stored[id] = c
		}
		return c, ok, err
	}

	result := make([]category.Category, len(batch))
	for i, c := range batch {
		root, err := r.resolveRoot(c, lookup)
		if err != nil {
			return nil, err
		}
		c.RootCategory = root
		result[i] = c
	}

	if err := r.checkSiblingNames(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *CategoryRepository) requireScopes(ctx context.Context, scopeIDs []string) error {
	found, err := r.scopes.ReadByIDs(ctx, scopeIDs)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(found))
	for _, s := range found {
		present[string(s.ID)] = struct{}{}
	}
	for _, id := range scopeIDs {
		if _, ok := present[id]; !ok {
			return apperrors.NotFound("SCOPE_NOT_FOUND", "scope not found").
				WithResource(KindScope).
				WithDetails(id).
				Build()
		}
	}
	return nil
}

// resolveRoot walks the parent chain of c. The parent must exist and share
// the scope of c, and c must not be its own ancestor.
func (r *CategoryRepository) resolveRoot(
	c category.Category,
	lookup func(category.CategoryID) (category.Category, bool, error),
) (category.CategoryID, error) {
	if c.IsRootCategory() {
		return c.ID, nil
	}

	parent, ok, err := lookup(c.ParentCategory)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NotFound("PARENT_NOT_FOUND", "parent category not found").
			WithResource(KindCategory).
			WithDetails(string(c.ParentCategory)).
			Build()
	}
	if parent.Scope != c.Scope {
		return "", apperrors.Validation("PARENT_SCOPE_MISMATCH", "parent category belongs to another scope").
			WithDetails(string(c.ParentCategory)).
			Build()
	}

	visited := map[category.CategoryID]struct{}{c.ID: {}}
	current := c
	for !current.IsRootCategory() {
		next, ok, err := lookup(current.ParentCategory)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if _, seen := visited[next.ID]; seen {
			return "", circularReference(next.ID)
		}
		visited[next.ID] = struct{}{}
		current = next
	}
	return current.ID, nil
}

func (r *CategoryRepository) checkSiblingNames(ctx context.Context, batch []category.Category) error {
	batchIDs := make(map[category.CategoryID]struct{}, len(batch))
	names := make(map[siblingKey]map[string]category.CategoryID)
	var keys []siblingKey
	for _, c := range batch {
		batchIDs[c.ID] = struct{}{}
		key := siblingKey{scope: c.Scope, parent: c.ParentCategory}
		if names[key] == nil {
			names[key] = make(map[string]category.CategoryID)
			keys = append(keys, key)
		}
		name := strings.ToLower(c.Name)
		if _, dup := names[key][name]; dup {
			return duplicateName(KindCategory, c.Name)
		}
		names[key][name] = c.ID
	}

	siblings, err := repository.RetrieveFiltered(ctx, keys,
		func(k siblingKey) repository.Filter {
			return repository.And(
				repository.Field(FieldScope).Equal(string(k.scope)),
				repository.Field(FieldParentCategory).Equal(string(k.parent)),
			)
		},
		r.Read,
		CategoryCodec.ID,
	)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if _, replaced := batchIDs[s.ID]; replaced {
			continue
		}
		key := siblingKey{scope: s.Scope, parent: s.ParentCategory}
		if _, clash := names[key][strings.ToLower(s.Name)]; clash {
			return duplicateName(KindCategory, s.Name)
		}
	}
	return nil
}

// refreshDescendantRoots rewrites RootCategory below every saved category
// whose descendants still point at another root.
func (r *CategoryRepository) refreshDescendantRoots(ctx context.Context, saved []category.Category) error {
	var stale []category.Category
	seen := make(map[category.CategoryID]struct{})
	for _, c := range saved {
		descendants, err := r.GetDescendantCategories(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			if _, dup := seen[d.ID]; dup || d.RootCategory == c.RootCategory {
				continue
			}
			seen[d.ID] = struct{}{}
			d.RootCategory = c.RootCategory
			stale = append(stale, d)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	r.logger.Debug("refreshing root category of descendants", zap.Int("count", len(stale)))
	_, err := r.update(ctx, stale)
	return err
}

func circularReference(id category.CategoryID) error {
	return apperrors.CircularReference("CIRCULAR_REFERENCE", "category would become its own ancestor").
		WithResource(KindCategory).
		WithDetails(string(id)).
		Build()
}
