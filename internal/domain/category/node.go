package category

import (
	"fmt"

	"taxonomy-backend/internal/domain/shared"
	apperrors "taxonomy-backend/internal/errors"
)

// CategoryNode is an immutable materialized subtree. The parent back
// reference is assigned once, when the node is handed to its parent's
// constructor.
type CategoryNode struct {
	category Category
	parent   *CategoryNode
	children []*CategoryNode
	items    []CategoryItem
}

// NewCategoryNode creates a node owning children and items. Child order is
// preserved. A child that already belongs to another node is rejected.
func NewCategoryNode(category Category, children []*CategoryNode, items []CategoryItem) (*CategoryNode, error) {
	node := &CategoryNode{
		category: category,
		children: make([]*CategoryNode, 0, len(children)),
		items:    append([]CategoryItem(nil), items...),
	}
	for _, child := range children {
		if child == nil {
			return nil, apperrors.Validation("NIL_CHILD_NODE", "child node is nil").Build()
		}
		if child.parent != nil && child.parent != node {
			return nil, apperrors.Validation("PARENT_ALREADY_SET", "node already has a parent").
				WithDetails(child.category.String()).
				Build()
		}
	}
	for _, child := range children {
		child.parent = node
		node.children = append(node.children, child)
	}
	return node, nil
}

// Category returns the category held by the node.
func (n *CategoryNode) Category() Category { return n.category }

// Parent returns the enclosing node, or nil for a tree root.
func (n *CategoryNode) Parent() *CategoryNode { return n.parent }

// ChildCategories returns a copy of the direct child nodes.
func (n *CategoryNode) ChildCategories() []*CategoryNode {
	return append([]*CategoryNode(nil), n.children...)
}

// ChildItems returns a copy of the items attached directly to the node.
func (n *CategoryNode) ChildItems() []CategoryItem {
	return append([]CategoryItem(nil), n.items...)
}

// DescendantCategories returns every node below n in pre-order.
func (n *CategoryNode) DescendantCategories() []*CategoryNode {
	var result []*CategoryNode
	visited := make(map[*CategoryNode]struct{})
	stack := []*CategoryNode{n}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current != n {
			result = append(result, current)
		}
		for i := len(current.children) - 1; i >= 0; i-- {
			child := current.children[i]
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			stack = append(stack, child)
		}
	}
	return result
}

// DescendantItems returns the items of every descendant followed by the
// node's own items.
func (n *CategoryNode) DescendantItems() []CategoryItem {
	var result []CategoryItem
	for _, d := range n.DescendantCategories() {
		result = append(result, d.items...)
	}
	return append(result, n.items...)
}

// TryFindCategory looks up id in the subtree rooted at n, n included.
func (n *CategoryNode) TryFindCategory(id CategoryID) (*CategoryNode, bool) {
	if n.category.ID == id {
		return n, true
	}
	for _, d := range n.DescendantCategories() {
		if d.category.ID == id {
			return d, true
		}
	}
	return nil, false
}

// Equal compares two subtrees. Child nodes and items are compared as
// multisets, so their order does not matter.
func (n *CategoryNode) Equal(other *CategoryNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.category != other.category ||
		len(n.children) != len(other.children) ||
		len(n.items) != len(other.items) {
		return false
	}

	counts := make(map[CategoryItem]int, len(n.items))
	for _, item := range n.items {
		counts[item]++
	}
	for _, item := range other.items {
		if counts[item] == 0 {
			return false
		}
		counts[item]--
	}

	used := make([]bool, len(other.children))
outer:
	for _, child := range n.children {
		for j, candidate := range other.children {
			if !used[j] && child.Equal(candidate) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func (n *CategoryNode) String() string {
	return fmt.Sprintf("CategoryNode (Category: %s, ChildCategories: %d, ChildItems: %d)",
		n.category.Name, len(n.children), len(n.items))
}

// ToTree materializes categories and items into a tree. Roots are categories
// without a parent or whose parent is not part of the collection; siblings are
// ordered naturally by name. A single root is returned as is, several roots
// are wrapped in a node holding DefaultRootCategory. Items whose category is
// not in the collection are ignored.
func ToTree(categories []Category, items []CategoryItem) (*CategoryNode, error) {
	present := make(map[CategoryID]struct{}, len(categories))
	for _, c := range categories {
		present[c.ID] = struct{}{}
	}

	childrenOf := shared.NewOneToMany[CategoryID, CategoryID]()
	byID := make(map[CategoryID]Category, len(categories))
	var roots []Category
	for _, c := range categories {
		byID[c.ID] = c
		if _, ok := present[c.ParentCategory]; c.IsRootCategory() || !ok {
			roots = append(roots, c)
			continue
		}
		childrenOf.AddOrUpdate(c.ParentCategory, c.ID)
	}

	itemsOf := make(map[CategoryID][]CategoryItem)
	for _, item := range items {
		itemsOf[item.Category] = append(itemsOf[item.Category], item)
	}

	var build func(c Category) (*CategoryNode, error)
	build = func(c Category) (*CategoryNode, error) {
		children := make([]Category, 0, childrenOf.ChildCount(c.ID))
		for _, id := range childrenOf.GetChildren(c.ID) {
			children = append(children, byID[id])
		}
		SortCategories(children)

		nodes := make([]*CategoryNode, 0, len(children))
		for _, child := range children {
			node, err := build(child)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		return NewCategoryNode(c, nodes, itemsOf[c.ID])
	}

	SortCategories(roots)
	rootNodes := make([]*CategoryNode, 0, len(roots))
	for _, root := range roots {
		node, err := build(root)
		if err != nil {
			return nil, err
		}
		rootNodes = append(rootNodes, node)
	}

	if len(rootNodes) == 1 {
		return rootNodes[0], nil
	}
	return NewCategoryNode(DefaultRootCategory, rootNodes, nil)
}

// SortCategories orders categories naturally by name, then by id.
func SortCategories(categories []Category) {
	shared.SortNatural(categories, func(c Category) string { return c.Name + "\x00" + string(c.ID) })
}
