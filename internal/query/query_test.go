package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

type widget struct {
	ID   string
	Name string
}

type fakeSource struct {
	records []repository.Record
	reads   []repository.Query
	counts  []repository.Filter
}

func newFakeSource(names ...string) *fakeSource {
	s := &fakeSource{}
	for i, name := range names {
		s.records = append(s.records, repository.Record{
			ID:     fmt.Sprintf("w%d", i+1),
			Kind:   "widget",
			Fields: map[string]string{"name": name},
		})
	}
	return s
}

func (s *fakeSource) MapField(property string) (string, bool) {
	if property == "Name" {
		return "name", true
	}
	return BaseFieldMapper(property)
}

func (s *fakeSource) Execute(_ context.Context, q repository.Query) ([]widget, error) {
	s.reads = append(s.reads, q)
	var result []widget
	for _, r := range repository.Apply(s.records, q) {
		result = append(result, widget{ID: r.ID, Name: r.Fields["name"]})
	}
	return result, nil
}

func (s *fakeSource) ExecuteCount(_ context.Context, f repository.Filter) (int64, error) {
	s.counts = append(s.counts, f)
	return int64(len(repository.MatchAll(f, s.records))), nil
}

func TestCompile_Ordering(t *testing.T) {
	plan, err := Compile([]Operation{
		OrderOp{Property: "ID"},
		OrderByDescendingOp("Name"),
		OrderOp{Property: "ID", Then: true},
	}, Terminal{Kind: TerminalList}, testMapper)
	require.NoError(t, err)

	assert.Equal(t, []repository.OrderBy{
		{Field: "name", Descending: true},
		{Field: repository.FieldID},
	}, plan.Query.Order)
	assert.Equal(t, repository.True(), plan.Query.Filter)
}

func OrderByDescendingOp(property string) Operation {
	return OrderOp{Property: property, Descending: true}
}

func TestCompile_Terminals(t *testing.T) {
	where := []Operation{WhereOp{Predicate: Prop("Name").Contains("a")}}
	contains := repository.Field("name").Contains("a")
	isB := Prop("Name").Eq("b")

	tests := []struct {
		name     string
		terminal Terminal
		filter   repository.Filter
		limit    int
		count    bool
	}{
		{"list", Terminal{Kind: TerminalList}, contains, 0, false},
		{"first", Terminal{Kind: TerminalFirst}, contains, 1, false},
		{"single with predicate", Terminal{Kind: TerminalSingle, Predicate: isB},
			repository.And(contains, repository.Field("name").Equal("b")), 2, false},
		{"count", Terminal{Kind: TerminalCount}, contains, 0, true},
		{"any", Terminal{Kind: TerminalAny, Predicate: isB},
			repository.And(contains, repository.Field("name").Equal("b")), 0, true},
		{"all negates", Terminal{Kind: TerminalAll, Predicate: isB},
			repository.And(contains, repository.Not(repository.Field("name").Equal("b"))), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compile(where, tt.terminal, testMapper)
			require.NoError(t, err)
			assert.Equal(t, tt.filter, plan.Query.Filter)
			assert.Equal(t, tt.limit, plan.Query.Limit)
			assert.Equal(t, tt.count, plan.Count)
		})
	}
}

func TestCompile_Take(t *testing.T) {
	plan, err := Compile([]Operation{TakeOp{N: 5}}, Terminal{Kind: TerminalFirst}, testMapper)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Query.Limit)

	plan, err = Compile([]Operation{TakeOp{N: 1}}, Terminal{Kind: TerminalSingle}, testMapper)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Query.Limit)

	plan, err = Compile([]Operation{TakeOp{N: 0}}, Terminal{Kind: TerminalList}, testMapper)
	require.NoError(t, err)
	assert.True(t, plan.Empty)

	_, err = Compile([]Operation{TakeOp{N: 2}, WhereOp{Predicate: True()}}, Terminal{Kind: TerminalList}, testMapper)
	assert.True(t, apperrors.IsUnsupportedExpression(err))

	_, err = Compile([]Operation{TakeOp{N: 2}}, Terminal{Kind: TerminalCount}, testMapper)
	assert.True(t, apperrors.IsUnsupportedExpression(err))

	_, err = Compile([]Operation{TakeOp{N: -1}}, Terminal{Kind: TerminalList}, testMapper)
	assert.True(t, apperrors.IsValidation(err))

	_, err = Compile([]Operation{OrderOp{Property: "Name", Then: true}}, Terminal{Kind: TerminalList}, testMapper)
	assert.True(t, apperrors.IsUnsupportedExpression(err))
}

func TestQuery_EndToEnd(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("alpha", "beta", "gamma", "delta")
	q := New[widget](src)

	all, err := q.OrderByDescending("Name").ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gamma", all[0].Name)

	first, err := q.Where(Prop("Name").Contains("a")).OrderBy("Name").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", first.Name)
	assert.Equal(t, 1, src.reads[len(src.reads)-1].Limit)

	_, ok, err := q.FirstOrDefault(ctx, Prop("Name").Eq("omega"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = q.First(ctx, Prop("Name").Eq("omega"))
	assert.True(t, apperrors.IsNotFound(err))

	single, err := q.Single(ctx, Prop("Name").Eq("beta"))
	require.NoError(t, err)
	assert.Equal(t, "w2", single.ID)

	_, err = q.Single(ctx, Prop("Name").Contains("ta"))
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 2, src.reads[len(src.reads)-1].Limit)

	n, err := q.Count(ctx, Prop("Name").Contains("l"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	anyMatch, err := q.Any(ctx, Prop("Name").Eq("delta"))
	require.NoError(t, err)
	assert.True(t, anyMatch)

	allMatch, err := q.All(ctx, Prop("Name").Contains("a"))
	require.NoError(t, err)
	assert.True(t, allMatch)

	allMatch, err = q.All(ctx, Prop("Name").Contains("l"))
	require.NoError(t, err)
	assert.False(t, allMatch)

	taken, err := q.OrderBy("Name").Take(2).ToList(ctx)
	require.NoError(t, err)
	assert.Len(t, taken, 2)

	readsBefore := len(src.reads)
	none, err := q.Take(0).ToList(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Len(t, src.reads, readsBefore)
}

func TestQuery_BuildErrorsSurfaceEarly(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("alpha")
	q := New[widget](src)

	bad := q.Where(Prop("Color").Eq("red"))
	require.Error(t, bad.Err())
	assert.True(t, apperrors.IsUnsupportedExpression(bad.Err()))

	_, err := bad.OrderBy("Name").ToList(ctx)
	assert.True(t, apperrors.IsUnsupportedExpression(err))
	_, err = bad.Count(ctx)
	assert.Error(t, err)
	assert.Empty(t, src.reads)
	assert.Empty(t, src.counts)

	assert.Error(t, q.Take(1).Where(True()).Err())
	assert.NoError(t, q.Err())
}

func TestQuery_IsImmutable(t *testing.T) {
	src := newFakeSource("alpha", "beta")
	base := New[widget](src).Where(Prop("Name").Eq("alpha"))
	_ = base.Where(Prop("Name").Eq("beta"))

	spec, err := base.Spec()
	require.NoError(t, err)
	assert.Equal(t, repository.Field("name").Equal("alpha"), spec.Filter)
	assert.Len(t, base.Operations(), 1)
}
