package dynamodb

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"taxonomy-backend/internal/repository"
)

const (
	attrID     = "id"
	attrKind   = "kind"
	attrFields = "fields"

	// maxInOperands is the largest operand list DynamoDB accepts for IN.
	maxInOperands = 100
)

// pushdown returns a scan condition implied by f, or false when nothing can
// be evaluated server side. It is a prefilter only: results are always
// matched against f in process, so only leaves whose DynamoDB semantics
// agree with repository.Match on missing attributes are pushed (equality and
// containment with a non-empty value).
func pushdown(f repository.Filter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	for _, leaf := range conjuncts(f) {
		if c, ok := condition(leaf); ok {
			conds = append(conds, c)
		}
	}
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	}
	return expression.And(conds[0], conds[1], conds[2:]...), true
}

func conjuncts(f repository.Filter) []repository.Filter {
	and, ok := f.(repository.AndFilter)
	if !ok {
		return []repository.Filter{f}
	}
	var result []repository.Filter
	for _, inner := range and.Filters {
		result = append(result, conjuncts(inner)...)
	}
	return result
}

func condition(f repository.Filter) (expression.ConditionBuilder, bool) {
	switch f := f.(type) {
	case repository.FieldFilter:
		if f.Value == "" {
			return expression.ConditionBuilder{}, false
		}
		switch f.Comparator {
		case repository.Equal:
			return expression.Equal(attrName(f.Field), expression.Value(f.Value)), true
		case repository.Contains:
			return expression.Contains(attrName(f.Field), f.Value), true
		}
	case repository.OrFilter:
		return inCondition(f)
	}
	return expression.ConditionBuilder{}, false
}

// inCondition turns an OR of equalities on one field, the shape produced by
// batched key lookups, into a single IN.
func inCondition(or repository.OrFilter) (expression.ConditionBuilder, bool) {
	if len(or.Filters) < 2 || len(or.Filters) > maxInOperands {
		return expression.ConditionBuilder{}, false
	}
	var field string
	values := make([]expression.OperandBuilder, 0, len(or.Filters))
	for _, inner := range or.Filters {
		leaf, ok := inner.(repository.FieldFilter)
		if !ok || leaf.Comparator != repository.Equal || leaf.Value == "" {
			return expression.ConditionBuilder{}, false
		}
		if field == "" {
			field = leaf.Field
		} else if field != leaf.Field {
			return expression.ConditionBuilder{}, false
		}
		values = append(values, expression.Value(leaf.Value))
	}
	return expression.In(attrName(field), values[0], values[1:]...), true
}

func attrName(field string) expression.NameBuilder {
	switch field {
	case repository.FieldID:
		return expression.Name(attrID)
	case repository.FieldKind:
		return expression.Name(attrKind)
	}
	return expression.Name(attrFields).AppendName(expression.Name(field))
}
