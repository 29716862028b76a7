package cache

import (
	"slices"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
)

// GetChildCategories returns the direct children of parentID.
func (c *Cache) GetChildCategories(parentID category.CategoryID) ([]category.Category, error) {
	if parentID.IsEmpty() {
		return nil, emptyArgument("category id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.children(parentID), nil
}

// GetDescendantCategories returns every category below parentID in
// pre-order, siblings in natural name order. parentID itself is excluded.
func (c *Cache) GetDescendantCategories(parentID category.CategoryID) ([]category.Category, error) {
	if parentID.IsEmpty() {
		return nil, emptyArgument("category id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descendants(parentID), nil
}

// GetChildItems returns the items attached directly to categoryID.
func (c *Cache) GetChildItems(categoryID category.CategoryID) ([]category.CategoryItem, error) {
	if categoryID.IsEmpty() {
		return nil, emptyArgument("category id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemsOf(categoryID), nil
}

// GetDescendantItems returns the items of categoryID followed by the items of
// every descendant category.
func (c *Cache) GetDescendantItems(categoryID category.CategoryID) ([]category.CategoryItem, error) {
	if categoryID.IsEmpty() {
		return nil, emptyArgument("category id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	result := c.itemsOf(categoryID)
	for _, d := range c.descendants(categoryID) {
		result = append(result, c.itemsOf(d.ID)...)
	}
	return result, nil
}

// GetAncestorPath returns the chain of categories from the root down to
// categoryID, inclusive. The walk stops at a parent missing from the cache.
// An id met twice fails with CIRCULAR_REFERENCE. The empty id yields an empty
// path.
func (c *Cache) GetAncestorPath(categoryID category.CategoryID) ([]category.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ancestorPath(categoryID)
}

// GetRootCategory returns the first element of the ancestor path.
func (c *Cache) GetRootCategory(categoryID category.CategoryID) (category.Category, error) {
	if categoryID.IsEmpty() {
		return category.Category{}, emptyArgument("category id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	path, err := c.ancestorPath(categoryID)
	if err != nil {
		return category.Category{}, err
	}
	if len(path) == 0 {
		return category.Category{}, notFound("category", string(categoryID))
	}
	return path[0], nil
}

// ContainsItem reports whether categoryID directly holds an item linking
// identifier.
func (c *Cache) ContainsItem(categoryID category.CategoryID, identifier category.CategoryItemIdentifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemIdentifiers.Contains(categoryID, identifier)
}

// ContainsDescendantItem reports whether categoryID or any of its
// descendants holds an item linking identifier.
func (c *Cache) ContainsDescendantItem(categoryID category.CategoryID, identifier category.CategoryItemIdentifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.itemIdentifiers.Contains(categoryID, identifier) {
		return true
	}
	found := false
	c.walkDescendants(categoryID, func(id category.CategoryID) bool {
		found = c.itemIdentifiers.Contains(id, identifier)
		return !found
	})
	return found
}

// HasChildCategories reports whether categoryID has at least one child.
func (c *Cache) HasChildCategories(categoryID category.CategoryID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childCategories.ChildCount(categoryID) > 0
}

// HasChildItems reports whether categoryID directly holds an item.
func (c *Cache) HasChildItems(categoryID category.CategoryID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childItems.ChildCount(categoryID) > 0
}

// HasDescendantItems reports whether categoryID or any descendant holds an
// item.
func (c *Cache) HasDescendantItems(categoryID category.CategoryID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.childItems.ChildCount(categoryID) > 0 {
		return true
	}
	found := false
	c.walkDescendants(categoryID, func(id category.CategoryID) bool {
		found = c.childItems.ChildCount(id) > 0
		return !found
	})
	return found
}

// GetSubtree materializes the tree rooted at categoryID. Sibling categories
// are in natural name order.
func (c *Cache) GetSubtree(categoryID category.CategoryID) (*category.CategoryNode, error) {
	if categoryID.IsEmpty() {
		return nil, emptyArgument("category id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	root, ok := c.categories[categoryID]
	if !ok {
		return nil, notFound("category", string(categoryID))
	}
	return c.buildNode(root, make(map[category.CategoryID]struct{}))
}

func (c *Cache) buildNode(cat category.Category, visited map[category.CategoryID]struct{}) (*category.CategoryNode, error) {
	if _, seen := visited[cat.ID]; seen {
		return nil, circular(cat.ID)
	}
	visited[cat.ID] = struct{}{}

	children := c.children(cat.ID)
	nodes := make([]*category.CategoryNode, 0, len(children))
	for _, child := range children {
		node, err := c.buildNode(child, visited)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return category.NewCategoryNode(cat, nodes, c.itemsOf(cat.ID))
}

func (c *Cache) children(parentID category.CategoryID) []category.Category {
	ids := c.childCategories.GetChildren(parentID)
	result := make([]category.Category, 0, len(ids))
	for _, id := range ids {
		if cat, ok := c.categories[id]; ok {
			result = append(result, cat)
		}
	}
	category.SortCategories(result)
	return result
}

func (c *Cache) itemsOf(categoryID category.CategoryID) []category.CategoryItem {
	ids := c.childItems.GetChildren(categoryID)
	result := make([]category.CategoryItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			result = append(result, item)
		}
	}
	sortItems(result)
	return result
}

func (c *Cache) descendants(parentID category.CategoryID) []category.Category {
	var result []category.Category
	c.walkDescendants(parentID, func(id category.CategoryID) bool {
		result = append(result, c.categories[id])
		return true
	})
	return result
}

// walkDescendants visits the categories below parentID in pre-order until
// visit returns false. Children are pushed in reverse so they pop in order.
func (c *Cache) walkDescendants(parentID category.CategoryID, visit func(category.CategoryID) bool) {
	visited := map[category.CategoryID]struct{}{parentID: {}}
	stack := reversedIDs(c.children(parentID))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		if !visit(id) {
			return
		}
		stack = append(stack, reversedIDs(c.children(id))...)
	}
}

func reversedIDs(categories []category.Category) []category.CategoryID {
	ids := make([]category.CategoryID, len(categories))
	for i, cat := range categories {
		ids[i] = cat.ID
	}
	slices.Reverse(ids)
	return ids
}

func (c *Cache) ancestorPath(categoryID category.CategoryID) ([]category.Category, error) {
	var path []category.Category
	visited := make(map[category.CategoryID]struct{})
	for current := categoryID; !current.IsEmpty(); {
		if _, seen := visited[current]; seen {
			return nil, circular(current)
		}
		visited[current] = struct{}{}

		cat, ok := c.categories[current]
		if !ok {
			break
		}
		path = append(path, cat)
		current = cat.ParentCategory
	}
	slices.Reverse(path)
	return path, nil
}

func circular(id category.CategoryID) error {
	return apperrors.CircularReference("CIRCULAR_REFERENCE", "category hierarchy contains a cycle").
		WithResource("category").
		WithDetails(string(id)).
		Build()
}
