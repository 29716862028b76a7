package repository

import (
	"context"
	"fmt"
	"strings"
)

// DefaultPageSize is the page size used when callers do not choose one.
const DefaultPageSize = 500

// OrderBy is one element of an ordering specification.
type OrderBy struct {
	Field      string
	Descending bool
	// Natural orders digit runs by numeric value ("Item 2" before "Item 10").
	Natural bool
}

func (o OrderBy) String() string {
	dir := "ASC"
	if o.Descending {
		dir = "DESC"
	}
	if o.Natural {
		dir += " NATURAL"
	}
	return o.Field + " " + dir
}

// Query is a complete read request: filter, ordering and an optional row
// limit. A zero Limit means no limit; a nil Filter means TRUE.
type Query struct {
	Filter Filter
	Order  []OrderBy
	Limit  int
}

// Where returns a query with only a filter set.
func Where(f Filter) Query { return Query{Filter: f} }

// EffectiveFilter returns the query filter, TRUE when unset.
func (q Query) EffectiveFilter() Filter {
	if q.Filter == nil {
		return TrueFilter{}
	}
	return q.Filter
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString("WHERE ")
	b.WriteString(q.EffectiveFilter().String())
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			parts[i] = o.String()
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String()
}

// ChangeHandler receives the changes matching a subscription filter.
type ChangeHandler func(ChangeSet)

// Subscription is an open change feed. Close is idempotent; no handler call
// starts after Close returns.
type Subscription interface {
	Close() error
}

// Store is the remote object store. Writes are all-or-nothing per call and
// report what they changed. Create fails with CONFLICT for an existing id;
// Update and Delete fail with NOT_FOUND for a missing one.
type Store interface {
	Create(ctx context.Context, records []Record) (ChangeSet, error)
	Update(ctx context.Context, records []Record) (ChangeSet, error)
	CreateOrUpdate(ctx context.Context, records []Record) (ChangeSet, error)
	Delete(ctx context.Context, records []Record) (ChangeSet, error)

	Read(ctx context.Context, q Query) ([]Record, error)
	ReadPaged(ctx context.Context, q Query, pageSize int, fn func(page []Record) error) error
	Count(ctx context.Context, f Filter) (int64, error)

	Subscribe(ctx context.Context, f Filter, handler ChangeHandler) (Subscription, error)
}

// Page splits records into pages of size and calls fn for each page. It
// stops at the first error.
func Page(records []Record, size int, fn func([]Record) error) error {
	if size <= 0 {
		size = DefaultPageSize
	}
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		if err := fn(records[start:end]); err != nil {
			return err
		}
	}
	return nil
}
