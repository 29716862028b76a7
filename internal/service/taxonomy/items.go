package taxonomy

import (
	"context"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// CategoryItemRepository stores the items attached to categories. A category
// links a given module/instance pair at most once through the child item
// operations.
type CategoryItemRepository struct {
	*Repository[category.CategoryItem]
	categories *Repository[category.Category]
}

// Create stores new items. Missing ids are generated.
func (r *CategoryItemRepository) Create(ctx context.Context, items ...category.CategoryItem) ([]category.CategoryItem, error) {
	items = r.withIDs(items)
	if err := r.check(ctx, items); err != nil {
		return nil, err
	}
	return r.create(ctx, items)
}

// Update replaces existing items.
func (r *CategoryItemRepository) Update(ctx context.Context, items ...category.CategoryItem) ([]category.CategoryItem, error) {
	if err := r.check(ctx, items); err != nil {
		return nil, err
	}
	return r.update(ctx, items)
}

// CreateOrUpdate stores items whether or not they exist.
func (r *CategoryItemRepository) CreateOrUpdate(ctx context.Context, items ...category.CategoryItem) ([]category.CategoryItem, error) {
	items = r.withIDs(items)
	if err := r.check(ctx, items); err != nil {
		return nil, err
	}
	return r.upsert(ctx, items)
}

// Delete removes items.
func (r *CategoryItemRepository) Delete(ctx context.Context, items ...category.CategoryItem) error {
	for _, item := range items {
		if item.ID.IsEmpty() {
			return apperrors.Validation("EMPTY_ID", "category item id must not be empty").Build()
		}
	}
	return r.delete(ctx, items)
}

// GetChildItems returns the items attached to categoryID.
func (r *CategoryItemRepository) GetChildItems(ctx context.Context, categoryID category.CategoryID) ([]category.CategoryItem, error) {
	if categoryID.IsEmpty() {
		return nil, apperrors.Validation("EMPTY_ID", "category id must not be empty").Build()
	}
	return r.Read(ctx, repository.Field(FieldCategory).Equal(string(categoryID)))
}

// GetChildItemsForCategories returns the items attached to any of
// categoryIDs.
func (r *CategoryItemRepository) GetChildItemsForCategories(ctx context.Context, categoryIDs []category.CategoryID) ([]category.CategoryItem, error) {
	keys := make([]string, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		if !id.IsEmpty() {
			keys = append(keys, string(id))
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return repository.RetrieveFiltered(ctx, keys,
		func(id string) repository.Filter { return repository.Field(FieldCategory).Equal(id) },
		r.Read,
		CategoryItemCodec.ID,
	)
}

// ReplaceChildItems makes items the exact set attached to categoryID. Items
// already linked are kept, others are removed or created.
func (r *CategoryItemRepository) ReplaceChildItems(ctx context.Context, categoryID category.CategoryID, items ...category.CategoryItem) error {
	target, existing, err := r.childState(ctx, categoryID, items)
	if err != nil {
		return err
	}

	wanted := make(map[category.CategoryItemIdentifier]struct{}, len(target))
	for _, item := range target {
		wanted[item.Identifier()] = struct{}{}
	}
	var stale []category.CategoryItem
	linked := make(map[category.CategoryItemIdentifier]struct{}, len(existing))
	for _, item := range existing {
		if _, keep := wanted[item.Identifier()]; !keep {
			stale = append(stale, item)
			continue
		}
		linked[item.Identifier()] = struct{}{}
	}
	if err := r.delete(ctx, stale); err != nil {
		return err
	}
	_, err = r.create(ctx, missing(target, linked))
	return err
}

// AddChildItems attaches items to categoryID, skipping those already linked.
func (r *CategoryItemRepository) AddChildItems(ctx context.Context, categoryID category.CategoryID, items ...category.CategoryItem) error {
	target, existing, err := r.childState(ctx, categoryID, items)
	if err != nil {
		return err
	}
	linked := make(map[category.CategoryItemIdentifier]struct{}, len(existing))
	for _, item := range existing {
		linked[item.Identifier()] = struct{}{}
	}
	_, err = r.create(ctx, missing(target, linked))
	return err
}

// RemoveChildItems detaches the resources of items from categoryID.
func (r *CategoryItemRepository) RemoveChildItems(ctx context.Context, categoryID category.CategoryID, items ...category.CategoryItem) error {
	target, existing, err := r.childState(ctx, categoryID, items)
	if err != nil {
		return err
	}
	unwanted := make(map[category.CategoryItemIdentifier]struct{}, len(target))
	for _, item := range target {
		unwanted[item.Identifier()] = struct{}{}
	}
	var remove []category.CategoryItem
	for _, item := range existing {
		if _, ok := unwanted[item.Identifier()]; ok {
			remove = append(remove, item)
		}
	}
	return r.delete(ctx, remove)
}

// ClearChildItems detaches every item from categoryID.
func (r *CategoryItemRepository) ClearChildItems(ctx context.Context, categoryID category.CategoryID) error {
	existing, err := r.GetChildItems(ctx, categoryID)
	if err != nil {
		return err
	}
	return r.delete(ctx, existing)
}

// childState normalizes items for categoryID and reads what is attached
// today. Items without a category take categoryID.
func (r *CategoryItemRepository) childState(
	ctx context.Context,
	categoryID category.CategoryID,
	items []category.CategoryItem,
) ([]category.CategoryItem, []category.CategoryItem, error) {
	if categoryID.IsEmpty() {
		return nil, nil, apperrors.Validation("EMPTY_ID", "category id must not be empty").Build()
	}
	target := make([]category.CategoryItem, 0, len(items))
	seen := make(map[category.CategoryItemIdentifier]struct{}, len(items))
	for _, item := range items {
		if item.Category.IsEmpty() {
			item.Category = categoryID
		}
		if item.Category != categoryID {
			return nil, nil, apperrors.Validation("CATEGORY_MISMATCH", "item belongs to another category").
				WithDetails(string(item.Category)).
				Build()
		}
		if err := category.Validate(item); err != nil {
			return nil, nil, err
		}
		if _, dup := seen[item.Identifier()]; dup {
			continue
		}
		seen[item.Identifier()] = struct{}{}
		target = append(target, item)
	}
	if _, err := r.categories.ReadByID(ctx, string(categoryID)); err != nil {
		return nil, nil, err
	}
	existing, err := r.GetChildItems(ctx, categoryID)
	if err != nil {
		return nil, nil, err
	}
	return r.withIDs(target), existing, nil
}

// check validates a batch and requires every referenced category to exist.
func (r *CategoryItemRepository) check(ctx context.Context, items []category.CategoryItem) error {
	seen := make(map[category.CategoryItemID]struct{}, len(items))
	categoryIDs := make([]string, 0, len(items))
	for _, item := range items {
		if err := category.Validate(item); err != nil {
			return err
		}
		if item.Category.IsEmpty() {
			return apperrors.Validation("MISSING_CATEGORY", "item needs a category").WithDetails(string(item.ID)).Build()
		}
		if _, dup := seen[item.ID]; dup {
			return apperrors.Validation("DUPLICATE_ID", "item appears twice in the batch").WithDetails(string(item.ID)).Build()
		}
		seen[item.ID] = struct{}{}
		categoryIDs = append(categoryIDs, string(item.Category))
	}

	found, err := r.categories.ReadByIDs(ctx, categoryIDs)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(found))
	for _, c := range found {
		present[string(c.ID)] = struct{}{}
	}
	for _, id := range categoryIDs {
		if _, ok := present[id]; !ok {
			return apperrors.NotFound("CATEGORY_NOT_FOUND", "category not found").
				WithResource(KindCategory).
				WithDetails(id).
				Build()
		}
	}
	return nil
}

func missing(items []category.CategoryItem, linked map[category.CategoryItemIdentifier]struct{}) []category.CategoryItem {
	var result []category.CategoryItem
	for _, item := range items {
		if _, ok := linked[item.Identifier()]; !ok {
			result = append(result, item)
		}
	}
	return result
}
