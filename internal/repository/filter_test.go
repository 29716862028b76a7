package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAndOr_Degenerate(t *testing.T) {
	f := Field("name").Equal("x")

	assert.Equal(t, TrueFilter{}, And())
	assert.Equal(t, FalseFilter{}, Or())
	assert.Equal(t, f, And(f))
	assert.Equal(t, f, Or(f))
	assert.Equal(t, AndFilter{Filters: []Filter{f, f}}, And(f, f))
}

func TestLeafCount(t *testing.T) {
	a := Field("a").Equal("1")
	b := Field("b").Equal("2")

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"leaf", a, 1},
		{"true", True(), 1},
		{"not counts as one", Not(And(a, b)), 1},
		{"and", And(a, b), 2},
		{"nested", Or(And(a, b), a, Or(b, b)), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LeafCount(tt.filter))
		})
	}
}

func TestFilter_String(t *testing.T) {
	f := And(Field("kind").Equal("scope"), Not(Field("name").Contains("tmp")))
	assert.Equal(t, `(kind EQUAL "scope" AND NOT name CONTAINS "tmp")`, f.String())

	q := Query{Filter: f, Order: []OrderBy{{Field: "name", Natural: true}}, Limit: 2}
	assert.Equal(t, `WHERE (kind EQUAL "scope" AND NOT name CONTAINS "tmp") ORDER BY name ASC NATURAL LIMIT 2`, q.String())
}
