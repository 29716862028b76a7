package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/infrastructure/persistence/memory"
	"taxonomy-backend/internal/service/taxonomy"
)

const seedYAML = `
scopes:
  - name: Infrastructure
    categories:
      - name: Network
        children:
          - name: Switches
          - name: Routers
            items:
              - {module: inventory, instance: r1}
              - {module: inventory, instance: r2}
      - name: Storage
  - name: Empty
`

func TestSeed_ApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	api := taxonomy.NewAPI(memory.NewStore(nil), nil, 0)

	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Scopes, 2)

	stats, err := seed.Apply(ctx, api)
	require.NoError(t, err)
	assert.Equal(t, SeedStats{Scopes: 2, Categories: 4, Items: 2}, stats)

	stats, err = seed.Apply(ctx, api)
	require.NoError(t, err)
	assert.Equal(t, SeedStats{}, stats)

	scope, err := api.Scopes.GetByName(ctx, "infrastructure")
	require.NoError(t, err)
	categories, err := api.Categories.GetByScope(ctx, scope.ID)
	require.NoError(t, err)
	assert.Len(t, categories, 4)
}

func TestSeed_TreeOutput(t *testing.T) {
	ctx := context.Background()
	api := taxonomy.NewAPI(memory.NewStore(nil), nil, 0)
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	_, err = seed.Apply(ctx, api)
	require.NoError(t, err)

	scope, err := api.Scopes.GetByName(ctx, "Infrastructure")
	require.NoError(t, err)
	tree, err := api.Categories.GetTreeForScope(ctx, scope.ID)
	require.NoError(t, err)

	var out bytes.Buffer
	printScopeTree(&out, tree)
	assert.Equal(t, "  Network\n    Routers (2 items)\n    Switches\n  Storage\n", out.String())

	var routers category.Category
	for _, c := range tree.DescendantCategories() {
		if c.Category().Name == "Routers" {
			routers = c.Category()
		}
	}
	require.NotEmpty(t, routers.ID)
	path, err := api.Categories.GetAncestorPath(ctx, routers.ID)
	require.NoError(t, err)
	assert.Equal(t, "Network > Routers", formatPath(path))
}

func TestParseSeed_RejectsUnknownFields(t *testing.T) {
	_, err := ParseSeed(strings.NewReader("scopes:\n  - name: A\n    colour: red\n"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}

func TestSeed_InvalidCategoryName(t *testing.T) {
	ctx := context.Background()
	api := taxonomy.NewAPI(memory.NewStore(nil), nil, 0)
	seed := Seed{Scopes: []SeedScope{{Name: "S", Categories: []SeedCategory{{Name: ""}}}}}

	_, err := seed.Apply(ctx, api)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}
