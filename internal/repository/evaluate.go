package repository

import (
	"sort"
	"strings"

	"taxonomy-backend/internal/domain/shared"
)

// Match evaluates f against r. Values are compared as strings; CONTAINS is a
// case-sensitive substring test.
func Match(f Filter, r Record) bool {
	switch f := f.(type) {
	case nil:
		return true
	case TrueFilter:
		return true
	case FalseFilter:
		return false
	case NotFilter:
		return !Match(f.Filter, r)
	case AndFilter:
		for _, sub := range f.Filters {
			if !Match(sub, r) {
				return false
			}
		}
		return true
	case OrFilter:
		for _, sub := range f.Filters {
			if Match(sub, r) {
				return true
			}
		}
		return false
	case FieldFilter:
		return compareField(r.Get(f.Field), f.Comparator, f.Value)
	}
	return false
}

func compareField(actual string, c Comparator, expected string) bool {
	switch c {
	case Equal:
		return actual == expected
	case NotEqual:
		return actual != expected
	case Less:
		return actual < expected
	case LessOrEqual:
		return actual <= expected
	case Greater:
		return actual > expected
	case GreaterOrEqual:
		return actual >= expected
	case Contains:
		return strings.Contains(actual, expected)
	case NotContains:
		return !strings.Contains(actual, expected)
	}
	return false
}

// MatchAll returns the records matching f.
func MatchAll(f Filter, records []Record) []Record {
	var result []Record
	for _, r := range records {
		if Match(f, r) {
			result = append(result, r)
		}
	}
	return result
}

// SortRecords orders records in place. Records equal under every element
// keep their relative order.
func SortRecords(records []Record, order []OrderBy) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range order {
			a, b := records[i].Get(o.Field), records[j].Get(o.Field)
			var c int
			if o.Natural {
				c = shared.NaturalCompare(a, b)
			} else {
				c = strings.Compare(a, b)
			}
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Apply runs a full query over an in-memory record set: filter, order, limit.
func Apply(records []Record, q Query) []Record {
	result := MatchAll(q.EffectiveFilter(), records)
	SortRecords(result, q.Order)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}
