package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// fakeDynamo keeps items in memory. Scan ignores filter expressions and
// returns pageSize items per page; conditions are interpreted from the
// condition expression text.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	scans    []*dynamodb.ScanInput
	txCalls  int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue), pageSize: 2}
}

func idOf(av map[string]types.AttributeValue) string {
	return av[attrID].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, in)

	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := idOf(in.ExclusiveStartKey)
		start = sort.SearchStrings(ids, after) + 1
	}
	end := min(start+f.pageSize, len(ids))

	out := &dynamodb.ScanOutput{}
	for _, id := range ids[start:end] {
		out.Items = append(out.Items, f.items[id])
	}
	if end < len(ids) {
		out.LastEvaluatedKey = key(ids[end-1])
	}
	return out, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, ka := range in.RequestItems {
		for _, k := range ka.Keys {
			if it, ok := f.items[idOf(k)]; ok {
				out.Responses[table] = append(out.Responses[table], it)
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, action := range in.TransactItems {
		var id string
		var cond *string
		switch {
		case action.Put != nil:
			id, cond = idOf(action.Put.Item), action.Put.ConditionExpression
		case action.Delete != nil:
			id, cond = idOf(action.Delete.Key), action.Delete.ConditionExpression
		}
		_, exists := f.items[id]
		ok := true
		if c := aws.ToString(cond); c != "" {
			if strings.HasPrefix(c, "attribute_not_exists") {
				ok = !exists
			} else {
				ok = exists
			}
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{Message: aws.String("cancelled"), CancellationReasons: reasons}
	}

	for _, action := range in.TransactItems {
		if action.Put != nil {
			f.items[idOf(action.Put.Item)] = action.Put.Item
		} else {
			delete(f.items, idOf(action.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func rec(id, kind string, fields map[string]string) repository.Record {
	return repository.Record{ID: id, Kind: kind, Fields: fields}
}

func TestStore_WriteSemantics(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	s := NewStore(client, "taxonomy", nil)

	cs, err := s.Create(ctx, []repository.Record{rec("a", "scope", map[string]string{"name": "A"})})
	require.NoError(t, err)
	assert.Len(t, cs.Created, 1)

	_, err = s.Create(ctx, []repository.Record{rec("b", "scope", nil), rec("a", "scope", nil)})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Len(t, client.items, 1)

	_, err = s.Update(ctx, []repository.Record{rec("zz", "scope", nil)})
	assert.True(t, apperrors.IsNotFound(err))

	cs, err = s.CreateOrUpdate(ctx, []repository.Record{
		rec("a", "scope", map[string]string{"name": "A2"}),
		rec("b", "scope", map[string]string{"name": "B"}),
	})
	require.NoError(t, err)
	assert.Len(t, cs.Updated, 1)
	assert.Len(t, cs.Created, 1)

	cs, err = s.Delete(ctx, []repository.Record{{ID: "a"}})
	require.NoError(t, err)
	require.Len(t, cs.Deleted, 1)
	assert.Equal(t, "A2", cs.Deleted[0].Fields["name"])

	_, err = s.Delete(ctx, []repository.Record{{ID: "a"}})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_LargeWritesAreChunked(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	s := NewStore(client, "taxonomy", nil)

	var records []repository.Record
	for i := 0; i < 250; i++ {
		records = append(records, rec(fmt.Sprintf("r%03d", i), "item", nil))
	}
	_, err := s.Create(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, client.txCalls)
	assert.Len(t, client.items, 250)
}

func TestStore_ReadScansAllPagesAndMatches(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamo()
	s := NewStore(client, "taxonomy", nil)
	_, err := s.Create(ctx, []repository.Record{
		rec("1", "category", map[string]string{"name": "Routers", "parentCategory": ""}),
		rec("2", "category", map[string]string{"name": "Switches", "parentCategory": "1"}),
		rec("3", "category", map[string]string{"name": "Disks", "parentCategory": ""}),
		rec("4", "scope", map[string]string{"name": "Network"}),
		rec("5", "category", map[string]string{"name": "Cables", "parentCategory": "1"}),
	})
	require.NoError(t, err)

	roots, err := s.Read(ctx, repository.Query{
		Filter: repository.And(
			repository.Field(repository.FieldKind).Equal("category"),
			repository.Field("parentCategory").Equal(""),
		),
		Order: []repository.OrderBy{{Field: "name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, ids(roots))

	last := client.scans[len(client.scans)-1]
	require.NotNil(t, last.FilterExpression, "the kind equality is pushed down")
	assert.Contains(t, last.ExpressionAttributeNames, "#0")

	n, err := s.Count(ctx, repository.Field("parentCategory").Equal("1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	limited, err := s.Read(ctx, repository.Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	var sizes []int
	require.NoError(t, s.ReadPaged(ctx, repository.Query{}, 3, func(page []repository.Record) error {
		sizes = append(sizes, len(page))
		return nil
	}))
	assert.Equal(t, []int{3, 2}, sizes)
}

func TestPushdown(t *testing.T) {
	_, ok := pushdown(repository.True())
	assert.False(t, ok)

	_, ok = pushdown(repository.Field("name").Less("b"))
	assert.False(t, ok, "ordering comparisons disagree on missing attributes")

	_, ok = pushdown(repository.Not(repository.Field("name").Equal("b")))
	assert.False(t, ok)

	cond, ok := pushdown(repository.Or(
		repository.Field(repository.FieldID).Equal("a"),
		repository.Field(repository.FieldID).Equal("b"),
	))
	require.True(t, ok)
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	require.NoError(t, err)
	assert.Contains(t, aws.ToString(expr.Filter()), "IN")

	var keys []repository.Filter
	for i := 0; i < maxInOperands+1; i++ {
		keys = append(keys, repository.Field(repository.FieldID).Equal(fmt.Sprint(i)))
	}
	_, ok = pushdown(repository.Or(keys...))
	assert.False(t, ok)
}

func TestDecodeRoundTrip(t *testing.T) {
	av, err := attributevalue.MarshalMap(item{ID: "x", Kind: "scope", Fields: map[string]string{"name": "N"}})
	require.NoError(t, err)
	records, err := decode([]map[string]types.AttributeValue{av})
	require.NoError(t, err)
	assert.Equal(t, []repository.Record{rec("x", "scope", map[string]string{"name": "N"})}, records)
}

func ids(records []repository.Record) []string {
	var result []string
	for _, r := range records {
		result = append(result, r.ID)
	}
	return result
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorType
	}{
		{"throttled", &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}, apperrors.ErrorTypeUnavailable},
		{"missing table", &smithy.GenericAPIError{Code: "ResourceNotFoundException"}, apperrors.ErrorTypeExternal},
		{"other api error", &smithy.GenericAPIError{Code: "ValidationException"}, apperrors.ErrorTypeExternal},
		{"plain", fmt.Errorf("connection reset"), apperrors.ErrorTypeExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeError("Scan", fmt.Errorf("operation error: %w", tt.err))
			assert.Equal(t, tt.want, apperrors.TypeOf(err))
		})
	}
}
