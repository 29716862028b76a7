// Package category defines the taxonomy entities: scopes, categories, the
// items attached to categories and the materialized CategoryNode tree.
package category

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeID identifies a Scope. The empty value is the "no scope" sentinel.
type ScopeID string

// CategoryID identifies a Category. The empty value is the root sentinel used
// as ParentCategory of root categories.
type CategoryID string

// CategoryItemID identifies a CategoryItem.
type CategoryItemID string

// NewScopeID generates a random scope identifier.
func NewScopeID() ScopeID { return ScopeID(uuid.New().String()) }

// NewCategoryID generates a random category identifier.
func NewCategoryID() CategoryID { return CategoryID(uuid.New().String()) }

// NewCategoryItemID generates a random item identifier.
func NewCategoryItemID() CategoryItemID { return CategoryItemID(uuid.New().String()) }

func (id ScopeID) IsEmpty() bool        { return id == "" }
func (id CategoryID) IsEmpty() bool     { return id == "" }
func (id CategoryItemID) IsEmpty() bool { return id == "" }

func (id ScopeID) String() string        { return string(id) }
func (id CategoryID) String() string     { return string(id) }
func (id CategoryItemID) String() string { return string(id) }

// Scope is a namespace partitioning categories.
type Scope struct {
	ID   ScopeID `json:"id"`
	Name string  `json:"name" validate:"categoryname"`
}

// Category is a named node in a scope's forest.
type Category struct {
	ID             CategoryID `json:"id"`
	Name           string     `json:"name" validate:"categoryname"`
	ParentCategory CategoryID `json:"parentCategory,omitempty"`
	// RootCategory is computed by the repository on save.
	RootCategory CategoryID `json:"rootCategory,omitempty"`
	Scope        ScopeID    `json:"scope"`
}

// DefaultRootName is the name of the synthetic node that wraps several roots.
const DefaultRootName = "Root"

// DefaultRootCategory is the synthetic category used by ToTree when a
// collection has more than one root.
var DefaultRootCategory = Category{Name: DefaultRootName}

// IsRootCategory reports whether the category has no parent.
func (c Category) IsRootCategory() bool {
	return c.ParentCategory.IsEmpty()
}

func (c Category) String() string {
	return fmt.Sprintf("Category %q (%s)", c.Name, c.ID)
}

// CategoryItem links a category to an external resource.
type CategoryItem struct {
	ID         CategoryItemID `json:"id"`
	Category   CategoryID     `json:"category"`
	ModuleID   string         `json:"moduleId" validate:"required"`
	InstanceID string         `json:"instanceId" validate:"required"`
}

// Identifier returns the (module, instance) pair of the item.
func (i CategoryItem) Identifier() CategoryItemIdentifier {
	return CategoryItemIdentifier{ModuleID: i.ModuleID, InstanceID: i.InstanceID}
}

// CategoryItemIdentifier identifies an external resource independently of
// the item record that links it.
type CategoryItemIdentifier struct {
	ModuleID   string `json:"moduleId"`
	InstanceID string `json:"instanceId"`
}

func (i CategoryItemIdentifier) String() string {
	return i.ModuleID + "/" + i.InstanceID
}
