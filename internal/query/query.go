package query

import (
	"context"
	"fmt"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// Source executes compiled plans for one entity kind.
type Source[T any] interface {
	// MapField maps an entity property to a store field.
	MapField(property string) (string, bool)
	// Execute reads the entities matching q.
	Execute(ctx context.Context, q repository.Query) ([]T, error)
	// ExecuteCount counts the entities matching f.
	ExecuteCount(ctx context.Context, f repository.Filter) (int64, error)
}

// Query is an unexecuted, immutable query. Chaining methods return a new
// Query; nothing reaches the store until a terminal method runs. A predicate
// that cannot be translated is reported by Err right away and by every
// terminal method.
type Query[T any] struct {
	source Source[T]
	ops    []Operation
	err    error
}

// New starts a query over the whole collection of source.
func New[T any](source Source[T]) *Query[T] {
	return &Query[T]{source: source}
}

func (q *Query[T]) with(op Operation, err error) *Query[T] {
	next := &Query[T]{
		source: q.source,
		ops:    append(append([]Operation(nil), q.ops...), op),
		err:    q.err,
	}
	if next.err == nil {
		next.err = err
	}
	if next.err == nil {
		// Validate the chain as it grows so the failing step is reported.
		_, next.err = Compile(next.ops, Terminal{Kind: TerminalList}, q.source.MapField)
	}
	return next
}

// Where adds a predicate.
func (q *Query[T]) Where(predicate Expr) *Query[T] {
	var err error
	if predicate == nil {
		err = apperrors.Validation("NIL_PREDICATE", "predicate is nil").Build()
	}
	return q.with(WhereOp{Predicate: predicate}, err)
}

// OrderBy replaces the ordering with property ascending.
func (q *Query[T]) OrderBy(property string) *Query[T] {
	return q.with(OrderOp{Property: property}, nil)
}

// OrderByDescending replaces the ordering with property descending.
func (q *Query[T]) OrderByDescending(property string) *Query[T] {
	return q.with(OrderOp{Property: property, Descending: true}, nil)
}

// ThenBy adds property ascending to the ordering.
func (q *Query[T]) ThenBy(property string) *Query[T] {
	return q.with(OrderOp{Property: property, Then: true}, nil)
}

// ThenByDescending adds property descending to the ordering.
func (q *Query[T]) ThenByDescending(property string) *Query[T] {
	return q.with(OrderOp{Property: property, Descending: true, Then: true}, nil)
}

// Take limits the result to n rows.
func (q *Query[T]) Take(n int) *Query[T] {
	return q.with(TakeOp{N: n}, nil)
}

// Err returns the first error met while building the query.
func (q *Query[T]) Err() error { return q.err }

// Operations returns a copy of the recorded chain.
func (q *Query[T]) Operations() []Operation {
	return append([]Operation(nil), q.ops...)
}

// Spec returns the store request ToList would send.
func (q *Query[T]) Spec() (repository.Query, error) {
	plan, err := q.plan(TerminalList, nil)
	return plan.Query, err
}

func (q *Query[T]) plan(kind TerminalKind, predicates []Expr) (Plan, error) {
	if q.err != nil {
		return Plan{}, q.err
	}
	var predicate Expr
	if len(predicates) > 0 {
		predicate = And(predicates...)
	}
	return Compile(q.ops, Terminal{Kind: kind, Predicate: predicate}, q.source.MapField)
}

func (q *Query[T]) read(ctx context.Context, plan Plan) ([]T, error) {
	if plan.Empty {
		return nil, nil
	}
	return q.source.Execute(ctx, plan.Query)
}

// ToList executes the query and returns every matching entity.
func (q *Query[T]) ToList(ctx context.Context) ([]T, error) {
	plan, err := q.plan(TerminalList, nil)
	if err != nil {
		return nil, err
	}
	return q.read(ctx, plan)
}

// Count returns the number of entities matching the query and the optional
// predicates.
func (q *Query[T]) Count(ctx context.Context, predicates ...Expr) (int64, error) {
	plan, err := q.plan(TerminalCount, predicates)
	if err != nil {
		return 0, err
	}
	return q.source.ExecuteCount(ctx, plan.Query.EffectiveFilter())
}

// Any reports whether at least one entity matches.
func (q *Query[T]) Any(ctx context.Context, predicates ...Expr) (bool, error) {
	plan, err := q.plan(TerminalAny, predicates)
	if err != nil {
		return false, err
	}
	n, err := q.source.ExecuteCount(ctx, plan.Query.EffectiveFilter())
	return n > 0, err
}

// All reports whether every entity of the query satisfies predicate. It is
// answered by counting the entities that do not.
func (q *Query[T]) All(ctx context.Context, predicate Expr) (bool, error) {
	var predicates []Expr
	if predicate != nil {
		predicates = []Expr{predicate}
	}
	plan, err := q.plan(TerminalAll, predicates)
	if err != nil {
		return false, err
	}
	n, err := q.source.ExecuteCount(ctx, plan.Query.EffectiveFilter())
	return n == 0, err
}

// FirstOrDefault returns the first matching entity, if any.
func (q *Query[T]) FirstOrDefault(ctx context.Context, predicates ...Expr) (T, bool, error) {
	var zero T
	plan, err := q.plan(TerminalFirst, predicates)
	if err != nil {
		return zero, false, err
	}
	items, err := q.read(ctx, plan)
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// First returns the first matching entity and fails with NOT_FOUND when
// there is none.
func (q *Query[T]) First(ctx context.Context, predicates ...Expr) (T, error) {
	item, ok, err := q.FirstOrDefault(ctx, predicates...)
	if err != nil {
		return item, err
	}
	if !ok {
		return item, apperrors.NotFound("NO_ELEMENTS", "sequence contains no elements").Build()
	}
	return item, nil
}

// SingleOrDefault returns the only matching entity, if any, and fails when
// more than one entity matches.
func (q *Query[T]) SingleOrDefault(ctx context.Context, predicates ...Expr) (T, bool, error) {
	var zero T
	plan, err := q.plan(TerminalSingle, predicates)
	if err != nil {
		return zero, false, err
	}
	items, err := q.read(ctx, plan)
	if err != nil {
		return zero, false, err
	}
	switch len(items) {
	case 0:
		return zero, false, nil
	case 1:
		return items[0], true, nil
	}
	return zero, false, apperrors.Conflict("MULTIPLE_ELEMENTS", "sequence contains more than one element").
		WithDetails(fmt.Sprintf("query %s", plan.Query)).
		Build()
}

// Single returns the only matching entity and fails when there is none or
// more than one.
func (q *Query[T]) Single(ctx context.Context, predicates ...Expr) (T, error) {
	item, ok, err := q.SingleOrDefault(ctx, predicates...)
	if err != nil {
		return item, err
	}
	if !ok {
		return item, apperrors.NotFound("NO_ELEMENTS", "sequence contains no elements").Build()
	}
	return item, nil
}
