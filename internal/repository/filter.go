// Package repository defines the contract between the taxonomy core and the
// remote object store: the filter algebra, ordering, the record shape and the
// Store interface, plus the helpers every store implementation shares.
package repository

import (
	"fmt"
	"strings"
)

// Comparator is the operator of a FieldFilter.
type Comparator string

const (
	Equal          Comparator = "EQUAL"
	NotEqual       Comparator = "NOT_EQUAL"
	Less           Comparator = "LESS"
	LessOrEqual    Comparator = "LESS_OR_EQUAL"
	Greater        Comparator = "GREATER"
	GreaterOrEqual Comparator = "GREATER_OR_EQUAL"
	Contains       Comparator = "CONTAINS"
	NotContains    Comparator = "NOT_CONTAINS"
)

// Filter is a node of the store filter algebra. The set of implementations
// is closed: AndFilter, OrFilter, NotFilter, TrueFilter, FalseFilter and
// FieldFilter.
type Filter interface {
	isFilter()
	String() string
}

// AndFilter matches when every operand matches.
type AndFilter struct{ Filters []Filter }

// OrFilter matches when at least one operand matches.
type OrFilter struct{ Filters []Filter }

// NotFilter inverts its operand.
type NotFilter struct{ Filter Filter }

// TrueFilter matches every record.
type TrueFilter struct{}

// FalseFilter matches no record.
type FalseFilter struct{}

// FieldFilter compares a record field with a constant.
type FieldFilter struct {
	Field      string
	Comparator Comparator
	Value      string
}

func (AndFilter) isFilter()   {}
func (OrFilter) isFilter()    {}
func (NotFilter) isFilter()   {}
func (TrueFilter) isFilter()  {}
func (FalseFilter) isFilter() {}
func (FieldFilter) isFilter() {}

func (f AndFilter) String() string { return joinFilters("AND", f.Filters) }
func (f OrFilter) String() string  { return joinFilters("OR", f.Filters) }
func (f NotFilter) String() string { return "NOT " + f.Filter.String() }
func (TrueFilter) String() string  { return "TRUE" }
func (FalseFilter) String() string { return "FALSE" }
func (f FieldFilter) String() string {
	return fmt.Sprintf("%s %s %q", f.Field, f.Comparator, f.Value)
}

func joinFilters(op string, filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

// And combines filters. No operand yields TRUE, one operand is returned as is.
func And(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return TrueFilter{}
	case 1:
		return filters[0]
	}
	return AndFilter{Filters: append([]Filter(nil), filters...)}
}

// Or combines filters. No operand yields FALSE, one operand is returned as is.
func Or(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return FalseFilter{}
	case 1:
		return filters[0]
	}
	return OrFilter{Filters: append([]Filter(nil), filters...)}
}

// Not inverts f.
func Not(f Filter) Filter { return NotFilter{Filter: f} }

// True returns the filter matching everything.
func True() Filter { return TrueFilter{} }

// False returns the filter matching nothing.
func False() Filter { return FalseFilter{} }

// FieldRef starts a comparison on a named field.
type FieldRef string

// Field names a record field. FieldID and FieldKind address the record
// identity; any other name addresses an entry of Record.Fields.
func Field(name string) FieldRef { return FieldRef(name) }

func (f FieldRef) compare(c Comparator, value string) Filter {
	return FieldFilter{Field: string(f), Comparator: c, Value: value}
}

func (f FieldRef) Equal(value string) Filter          { return f.compare(Equal, value) }
func (f FieldRef) NotEqual(value string) Filter       { return f.compare(NotEqual, value) }
func (f FieldRef) Less(value string) Filter           { return f.compare(Less, value) }
func (f FieldRef) LessOrEqual(value string) Filter    { return f.compare(LessOrEqual, value) }
func (f FieldRef) Greater(value string) Filter        { return f.compare(Greater, value) }
func (f FieldRef) GreaterOrEqual(value string) Filter { return f.compare(GreaterOrEqual, value) }
func (f FieldRef) Contains(value string) Filter       { return f.compare(Contains, value) }
func (f FieldRef) NotContains(value string) Filter    { return f.compare(NotContains, value) }

// LeafCount returns the number of clauses a store has to evaluate for f. AND
// and OR count the sum of their operands; every other node counts as one.
func LeafCount(f Filter) int {
	switch f := f.(type) {
	case AndFilter:
		return sumLeaves(f.Filters)
	case OrFilter:
		return sumLeaves(f.Filters)
	default:
		return 1
	}
}

func sumLeaves(filters []Filter) int {
	total := 0
	for _, f := range filters {
		total += LeafCount(f)
	}
	return total
}
