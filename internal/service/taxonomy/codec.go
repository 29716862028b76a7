package taxonomy

import (
	"taxonomy-backend/internal/domain/category"
	"taxonomy-backend/internal/repository"
)

// Record kinds.
const (
	KindScope        = "scope"
	KindCategory     = "category"
	KindCategoryItem = "category_item"
)

// Store field names.
const (
	FieldName           = "name"
	FieldParentCategory = "parentCategory"
	FieldRootCategory   = "rootCategory"
	FieldScope          = "scope"
	FieldCategory       = "category"
	FieldModuleID       = "moduleId"
	FieldInstanceID     = "instanceId"
)

// Codec converts one entity kind to and from store records.
type Codec[T any] struct {
	Kind   string
	ID     func(T) string
	SetID  func(T, string) T
	Encode func(T) map[string]string
	Decode func(repository.Record) T
	// Properties maps entity property names to store fields for queries.
	Properties map[string]string
	// NameField is the field ReadByName filters on. Empty disables it.
	NameField string
}

func (c Codec[T]) record(entity T) repository.Record {
	return repository.Record{ID: c.ID(entity), Kind: c.Kind, Fields: c.Encode(entity)}
}

func (c Codec[T]) records(entities []T) []repository.Record {
	result := make([]repository.Record, len(entities))
	for i, e := range entities {
		result[i] = c.record(e)
	}
	return result
}

func (c Codec[T]) decodeAll(records []repository.Record) []T {
	result := make([]T, 0, len(records))
	for _, r := range records {
		if r.Kind != c.Kind {
			continue
		}
		result = append(result, c.Decode(r))
	}
	return result
}

// ScopeCodec maps scopes to records.
var ScopeCodec = Codec[category.Scope]{
	Kind:  KindScope,
	ID:    func(s category.Scope) string { return string(s.ID) },
	SetID: func(s category.Scope, id string) category.Scope { s.ID = category.ScopeID(id); return s },
	Encode: func(s category.Scope) map[string]string {
		return map[string]string{FieldName: s.Name}
	},
	Decode: func(r repository.Record) category.Scope {
		return category.Scope{ID: category.ScopeID(r.ID), Name: r.Get(FieldName)}
	},
	Properties: map[string]string{"Name": FieldName},
	NameField:  FieldName,
}

// CategoryCodec maps categories to records.
var CategoryCodec = Codec[category.Category]{
	Kind:  KindCategory,
	ID:    func(c category.Category) string { return string(c.ID) },
	SetID: func(c category.Category, id string) category.Category { c.ID = category.CategoryID(id); return c },
	Encode: func(c category.Category) map[string]string {
		return map[string]string{
			FieldName:           c.Name,
			FieldParentCategory: string(c.ParentCategory),
			FieldRootCategory:   string(c.RootCategory),
			FieldScope:          string(c.Scope),
		}
	},
	Decode: func(r repository.Record) category.Category {
		return category.Category{
			ID:             category.CategoryID(r.ID),
			Name:           r.Get(FieldName),
			ParentCategory: category.CategoryID(r.Get(FieldParentCategory)),
			RootCategory:   category.CategoryID(r.Get(FieldRootCategory)),
			Scope:          category.ScopeID(r.Get(FieldScope)),
		}
	},
	Properties: map[string]string{
		"Name":           FieldName,
		"ParentCategory": FieldParentCategory,
		"RootCategory":   FieldRootCategory,
		"Scope":          FieldScope,
	},
	NameField: FieldName,
}

// CategoryItemCodec maps category items to records.
var CategoryItemCodec = Codec[category.CategoryItem]{
	Kind: KindCategoryItem,
	ID:   func(i category.CategoryItem) string { return string(i.ID) },
	SetID: func(i category.CategoryItem, id string) category.CategoryItem {
		i.ID = category.CategoryItemID(id)
		return i
	},
	Encode: func(i category.CategoryItem) map[string]string {
		return map[string]string{
			FieldCategory:   string(i.Category),
			FieldModuleID:   i.ModuleID,
			FieldInstanceID: i.InstanceID,
		}
	},
	Decode: func(r repository.Record) category.CategoryItem {
		return category.CategoryItem{
			ID:         category.CategoryItemID(r.ID),
			Category:   category.CategoryID(r.Get(FieldCategory)),
			ModuleID:   r.Get(FieldModuleID),
			InstanceID: r.Get(FieldInstanceID),
		}
	},
	Properties: map[string]string{
		"Category":   FieldCategory,
		"ModuleID":   FieldModuleID,
		"InstanceID": FieldInstanceID,
	},
}
