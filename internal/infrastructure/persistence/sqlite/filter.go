package sqlite

import (
	"fmt"
	"strings"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// whereClause renders f as a SQL boolean expression with positional
// arguments. AND and OR lists are split into balanced halves so that large
// batched filters stay within SQLite's expression depth limit.
func whereClause(f repository.Filter) (string, []any, error) {
	var b strings.Builder
	var args []any
	if err := writeFilter(&b, &args, f); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func writeFilter(b *strings.Builder, args *[]any, f repository.Filter) error {
	switch f := f.(type) {
	case nil, repository.TrueFilter:
		b.WriteString("1")
	case repository.FalseFilter:
		b.WriteString("0")
	case repository.AndFilter:
		return writeBalanced(b, args, f.Filters, " AND ", "1")
	case repository.OrFilter:
		return writeBalanced(b, args, f.Filters, " OR ", "0")
	case repository.NotFilter:
		b.WriteString("NOT (")
		if err := writeFilter(b, args, f.Filter); err != nil {
			return err
		}
		b.WriteString(")")
	case repository.FieldFilter:
		return writeComparison(b, args, f)
	default:
		return apperrors.UnsupportedExpression("UNSUPPORTED_FILTER", "filter cannot be rendered as SQL").
			WithDetails(fmt.Sprintf("%T", f)).
			Build()
	}
	return nil
}

func writeBalanced(b *strings.Builder, args *[]any, filters []repository.Filter, op, empty string) error {
	switch len(filters) {
	case 0:
		b.WriteString(empty)
		return nil
	case 1:
		return writeFilter(b, args, filters[0])
	}
	mid := len(filters) / 2
	b.WriteString("(")
	if err := writeBalanced(b, args, filters[:mid], op, empty); err != nil {
		return err
	}
	b.WriteString(op)
	if err := writeBalanced(b, args, filters[mid:], op, empty); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

var sqlComparators = map[repository.Comparator]string{
	repository.Equal:          "=",
	repository.NotEqual:       "<>",
	repository.Less:           "<",
	repository.LessOrEqual:    "<=",
	repository.Greater:        ">",
	repository.GreaterOrEqual: ">=",
}

func writeComparison(b *strings.Builder, args *[]any, f repository.FieldFilter) error {
	column, columnArgs := columnExpr(f.Field)
	*args = append(*args, columnArgs...)

	switch f.Comparator {
	case repository.Contains:
		fmt.Fprintf(b, "instr(%s, ?) > 0", column)
	case repository.NotContains:
		fmt.Fprintf(b, "instr(%s, ?) = 0", column)
	default:
		op, ok := sqlComparators[f.Comparator]
		if !ok {
			return apperrors.UnsupportedExpression("UNSUPPORTED_COMPARATOR", "comparator cannot be rendered as SQL").
				WithDetails(string(f.Comparator)).
				Build()
		}
		fmt.Fprintf(b, "%s %s ?", column, op)
	}
	*args = append(*args, f.Value)
	return nil
}

// columnExpr addresses a record field. Missing fields read as "".
func columnExpr(field string) (string, []any) {
	switch field {
	case repository.FieldID:
		return "id", nil
	case repository.FieldKind:
		return "kind", nil
	}
	return "COALESCE(json_extract(fields, ?), '')", []any{jsonPath(field)}
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
