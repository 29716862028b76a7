package query

import (
	"fmt"
	"reflect"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// FieldMapper maps an entity property to the physical store field. It
// reports false for properties the store cannot filter on.
type FieldMapper func(property string) (field string, ok bool)

// BaseFieldMapper maps only the identifier property.
func BaseFieldMapper(property string) (string, bool) {
	if property == "ID" {
		return repository.FieldID, true
	}
	return "", false
}

// MapperWith returns a mapper resolving overrides first and falling back to
// BaseFieldMapper.
func MapperWith(overrides map[string]string) FieldMapper {
	return func(property string) (string, bool) {
		if field, ok := overrides[property]; ok {
			return field, true
		}
		return BaseFieldMapper(property)
	}
}

// Convert translates e into a store filter.
func Convert(e Expr, mapField FieldMapper) (repository.Filter, error) {
	switch e := e.(type) {
	case AndExpr:
		return convertBinary(e.Left, e.Right, mapField, func(l, r repository.Filter) repository.Filter {
			return repository.And(l, r)
		})
	case OrExpr:
		return convertBinary(e.Left, e.Right, mapField, func(l, r repository.Filter) repository.Filter {
			return repository.Or(l, r)
		})
	case NotExpr:
		inner, err := Convert(e.Operand, mapField)
		if err != nil {
			return nil, err
		}
		return repository.Not(inner), nil
	case Literal:
		if e.Value {
			return repository.True(), nil
		}
		return repository.False(), nil
	case Comparison:
		return convertComparison(e, mapField)
	case Call:
		return convertCall(e, mapField)
	case AnyExpr:
		// The nested predicate addresses the element properties directly.
		return Convert(e.Predicate, mapField)
	case nil:
		return nil, unsupported("nil expression")
	}
	return nil, unsupported(e.String())
}

func convertBinary(left, right Expr, mapField FieldMapper, combine func(l, r repository.Filter) repository.Filter) (repository.Filter, error) {
	l, err := Convert(left, mapField)
	if err != nil {
		return nil, err
	}
	r, err := Convert(right, mapField)
	if err != nil {
		return nil, err
	}
	return combine(l, r), nil
}

var comparators = map[Op]repository.Comparator{
	OpEq: repository.Equal,
	OpNe: repository.NotEqual,
	OpLt: repository.Less,
	OpLe: repository.LessOrEqual,
	OpGt: repository.Greater,
	OpGe: repository.GreaterOrEqual,
}

// mirrored gives the operator that keeps the meaning when operands swap.
var mirrored = map[Op]Op{
	OpEq: OpEq,
	OpNe: OpNe,
	OpLt: OpGt,
	OpLe: OpGe,
	OpGt: OpLt,
	OpGe: OpLe,
}

func convertComparison(c Comparison, mapField FieldMapper) (repository.Filter, error) {
	op := c.Op
	prop, isProp := c.Left.(Property)
	value := c.Right
	if !isProp {
		prop, isProp = c.Right.(Property)
		value = c.Left
		op = mirrored[c.Op]
	}
	if !isProp {
		return nil, unsupported(c.String())
	}
	if _, bothProps := value.(Property); bothProps {
		return nil, unsupported(c.String())
	}

	comparator, ok := comparators[op]
	if !ok {
		return nil, unsupported(c.String())
	}
	field, ok := mapField(prop.Name)
	if !ok {
		return nil, unsupportedProperty(prop.Name, c.String())
	}
	v, err := evaluate(value)
	if err != nil {
		return nil, err
	}
	return repository.FieldFilter{Field: field, Comparator: comparator, Value: v}, nil
}

func convertCall(c Call, mapField FieldMapper) (repository.Filter, error) {
	if c.Method != "Contains" || len(c.Args) != 1 {
		return nil, unsupported(c.String())
	}
	prop, ok := c.Target.(Property)
	if !ok {
		return nil, unsupported(c.String())
	}
	if _, argIsProp := c.Args[0].(Property); argIsProp {
		return nil, unsupported(c.String())
	}
	field, ok := mapField(prop.Name)
	if !ok {
		return nil, unsupportedProperty(prop.Name, c.String())
	}
	v, err := evaluate(c.Args[0])
	if err != nil {
		return nil, err
	}
	return repository.Field(field).Contains(v), nil
}

// evaluate renders a constant operand as a store value. Identifier types
// render through their underlying string; nil renders as the empty reference.
func evaluate(o Operand) (string, error) {
	var v any
	switch o := o.(type) {
	case Constant:
		v = o.Value
	case Computed:
		if o.Fn == nil {
			return "", unsupported(o.String())
		}
		v = o.Fn()
	default:
		return "", unsupported(fmt.Sprint(o))
	}

	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", unsupported(fmt.Sprintf("constant of type %T", v))
}

func unsupported(expr string) error {
	return apperrors.UnsupportedExpression("UNSUPPORTED_EXPRESSION", "unsupported expression").
		WithDetails(expr).
		Build()
}

func unsupportedProperty(name, expr string) error {
	return apperrors.UnsupportedExpression("UNSUPPORTED_PROPERTY", fmt.Sprintf("property %q cannot be filtered on", name)).
		WithDetails(expr).
		Build()
}
