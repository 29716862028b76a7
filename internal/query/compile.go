package query

import (
	"fmt"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// Operation is one recorded chaining step of a query: WhereOp, OrderOp or
// TakeOp.
type Operation interface {
	isOperation()
}

// WhereOp adds a predicate. Predicates are ANDed.
type WhereOp struct{ Predicate Expr }

// OrderOp sets (Then == false) or extends (Then == true) the ordering.
type OrderOp struct {
	Property   string
	Descending bool
	Then       bool
}

// TakeOp limits the number of rows. No further chaining is allowed after it.
type TakeOp struct{ N int }

func (WhereOp) isOperation() {}
func (OrderOp) isOperation() {}
func (TakeOp) isOperation()  {}

// TerminalKind is the operation that ends a query and executes it.
type TerminalKind int

const (
	TerminalList TerminalKind = iota
	TerminalCount
	TerminalFirst
	TerminalSingle
	TerminalAny
	TerminalAll
)

func (k TerminalKind) String() string {
	switch k {
	case TerminalList:
		return "ToList"
	case TerminalCount:
		return "Count"
	case TerminalFirst:
		return "First"
	case TerminalSingle:
		return "Single"
	case TerminalAny:
		return "Any"
	case TerminalAll:
		return "All"
	}
	return fmt.Sprintf("TerminalKind(%d)", int(k))
}

// Terminal is the executing step with its optional predicate.
type Terminal struct {
	Kind      TerminalKind
	Predicate Expr
}

// Plan is the store request a query compiles to.
type Plan struct {
	Query repository.Query
	// Count executes a count over Query.Filter instead of a read.
	Count bool
	// Empty short-circuits Take(0): nothing is sent to the store.
	Empty bool
}

// Compile turns a recorded operation chain and its terminal into a store
// request. It is a pure function of its inputs.
func Compile(ops []Operation, terminal Terminal, mapField FieldMapper) (Plan, error) {
	var (
		filters    []repository.Filter
		order      []repository.OrderBy
		limit      int
		limited    bool
		extendable = true
	)

	addFilter := func(e Expr, invert bool) error {
		f, err := Convert(e, mapField)
		if err != nil {
			return err
		}
		if invert {
			f = repository.Not(f)
		}
		filters = append(filters, f)
		return nil
	}

	for _, op := range ops {
		if !extendable {
			return Plan{}, notExtendable(fmt.Sprintf("%T", op))
		}
		switch op := op.(type) {
		case WhereOp:
			if err := addFilter(op.Predicate, false); err != nil {
				return Plan{}, err
			}
		case OrderOp:
			if op.Then && len(order) == 0 {
				return Plan{}, apperrors.UnsupportedExpression("THEN_BY_WITHOUT_ORDER_BY", "ThenBy requires a preceding OrderBy").
					WithDetails(op.Property).
					Build()
			}
			field, ok := mapField(op.Property)
			if !ok {
				return Plan{}, unsupportedProperty(op.Property, "order by "+op.Property)
			}
			if !op.Then {
				order = order[:0]
			}
			order = append(order, repository.OrderBy{Field: field, Descending: op.Descending})
		case TakeOp:
			if op.N < 0 {
				return Plan{}, apperrors.Validation("NEGATIVE_LIMIT", "take count must not be negative").
					WithDetails(fmt.Sprint(op.N)).
					Build()
			}
			limit, limited = op.N, true
			extendable = false
		default:
			return Plan{}, unsupported(fmt.Sprintf("%T", op))
		}
	}

	plan := Plan{}
	switch terminal.Kind {
	case TerminalList:
		if terminal.Predicate != nil {
			return Plan{}, unsupported("ToList does not take a predicate")
		}
	case TerminalCount, TerminalAny:
		if !extendable {
			return Plan{}, notExtendable(terminal.Kind.String())
		}
		if terminal.Predicate != nil {
			if err := addFilter(terminal.Predicate, false); err != nil {
				return Plan{}, err
			}
		}
		plan.Count = true
	case TerminalAll:
		if !extendable {
			return Plan{}, notExtendable(terminal.Kind.String())
		}
		if terminal.Predicate == nil {
			return Plan{}, apperrors.Validation("MISSING_PREDICATE", "All requires a predicate").Build()
		}
		if err := addFilter(terminal.Predicate, true); err != nil {
			return Plan{}, err
		}
		plan.Count = true
	case TerminalFirst, TerminalSingle:
		if terminal.Predicate != nil {
			if !extendable {
				return Plan{}, notExtendable(terminal.Kind.String())
			}
			if err := addFilter(terminal.Predicate, false); err != nil {
				return Plan{}, err
			}
		}
		want := 1
		if terminal.Kind == TerminalSingle {
			// Two rows are enough to detect a violation of "exactly one".
			want = 2
		}
		if !limited || limit > want {
			limit, limited = want, true
		}
	default:
		return Plan{}, unsupported(terminal.Kind.String())
	}

	if limited && limit == 0 {
		plan.Empty = true
	}
	plan.Query = repository.Query{
		Filter: repository.And(filters...),
		Order:  append([]repository.OrderBy(nil), order...),
		Limit:  limit,
	}
	return plan, nil
}

func notExtendable(next string) error {
	return apperrors.UnsupportedExpression("QUERY_NOT_EXTENDABLE", "query cannot be extended after Take").
		WithDetails(next).
		Build()
}
