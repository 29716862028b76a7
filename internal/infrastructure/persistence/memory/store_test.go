package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

func rec(id, name string) repository.Record {
	return repository.Record{ID: id, Kind: "scope", Fields: map[string]string{"name": name}}
}

func TestStore_CreateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	cs, err := s.Create(ctx, []repository.Record{rec("a", "A")})
	require.NoError(t, err)
	assert.Len(t, cs.Created, 1)

	_, err = s.Create(ctx, []repository.Record{rec("b", "B"), rec("a", "A again")})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 1, s.Len())

	_, err = s.Create(ctx, []repository.Record{rec("c", "C"), rec("c", "C")})
	assert.True(t, apperrors.IsValidation(err))
}

func TestStore_UpdateDeleteRequireExisting(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	_, err := s.Update(ctx, []repository.Record{rec("x", "X")})
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.Delete(ctx, []repository.Record{rec("x", "X")})
	assert.True(t, apperrors.IsNotFound(err))

	cs, err := s.CreateOrUpdate(ctx, []repository.Record{rec("x", "X")})
	require.NoError(t, err)
	assert.Len(t, cs.Created, 1)

	cs, err = s.CreateOrUpdate(ctx, []repository.Record{rec("x", "X2"), rec("y", "Y")})
	require.NoError(t, err)
	assert.Len(t, cs.Updated, 1)
	assert.Len(t, cs.Created, 1)

	cs, err = s.Delete(ctx, []repository.Record{{ID: "x"}})
	require.NoError(t, err)
	require.Len(t, cs.Deleted, 1)
	assert.Equal(t, "X2", cs.Deleted[0].Fields["name"])
}

func TestStore_ReadCountAndPaging(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	var records []repository.Record
	for i := 1; i <= 7; i++ {
		records = append(records, rec(fmt.Sprintf("id%d", i), fmt.Sprintf("Scope %d", i)))
	}
	_, err := s.Create(ctx, records)
	require.NoError(t, err)

	got, err := s.Read(ctx, repository.Query{
		Filter: repository.Field("name").Contains("Scope"),
		Order:  []repository.OrderBy{{Field: "name", Natural: true, Descending: true}},
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id7", got[0].ID)

	n, err := s.Count(ctx, repository.Not(repository.Field(repository.FieldID).Equal("id1")))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	var pages []int
	err = s.ReadPaged(ctx, repository.Query{}, 3, func(page []repository.Record) error {
		pages = append(pages, len(page))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, pages)
}

func TestStore_ReadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	_, err := s.Create(ctx, []repository.Record{rec("a", "A")})
	require.NoError(t, err)

	got, err := s.Read(ctx, repository.Query{})
	require.NoError(t, err)
	got[0].Fields["name"] = "mutated"

	again, err := s.Read(ctx, repository.Query{})
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].Fields["name"])
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	var got []repository.ChangeSet
	sub, err := s.Subscribe(ctx, repository.Field("name").Equal("Watched"), func(cs repository.ChangeSet) {
		got = append(got, cs)
	})
	require.NoError(t, err)

	_, err = s.Create(ctx, []repository.Record{rec("a", "Watched"), rec("b", "Other")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Created[0].ID)

	require.NoError(t, sub.Close())
	_, err = s.Delete(ctx, []repository.Record{{ID: "a"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
