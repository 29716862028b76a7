// Package dynamodb implements the record store on a DynamoDB table keyed by
// "id". Record fields are kept in a string map attribute.
package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/infrastructure/events"
	"taxonomy-backend/internal/repository"
)

const (
	// maxTransactItems is the DynamoDB limit of actions per transaction.
	maxTransactItems = 100
	// maxBatchGetKeys is the DynamoDB limit of keys per BatchGetItem.
	maxBatchGetKeys = 100
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type item struct {
	ID     string            `dynamodbav:"id"`
	Kind   string            `dynamodbav:"kind"`
	Fields map[string]string `dynamodbav:"fields"`
}

// Store is a repository.Store on one DynamoDB table. Writes of up to 100
// records are one transaction; larger batches are split into consecutive
// transactions. Change notifications are delivered in process.
type Store struct {
	client API
	table  string
	hub    *events.Hub
	logger *zap.Logger
}

// NewStore creates a store on table.
func NewStore(client API, table string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, table: table, hub: events.NewHub(logger), logger: logger}
}

type writeMode int

const (
	modeCreate writeMode = iota
	modeUpdate
	modeUpsert
	modeDelete
)

// Create inserts records that must not exist yet.
func (s *Store) Create(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, records, modeCreate)
}

// Update replaces records that must exist.
func (s *Store) Update(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, records, modeUpdate)
}

// CreateOrUpdate inserts or replaces records.
func (s *Store) CreateOrUpdate(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, records, modeUpsert)
}

// Delete removes records that must exist.
func (s *Store) Delete(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, records, modeDelete)
}

func (s *Store) write(ctx context.Context, records []repository.Record, mode writeMode) (repository.ChangeSet, error) {
	if err := checkBatch(records); err != nil {
		return repository.ChangeSet{}, err
	}
	if len(records) == 0 {
		return repository.ChangeSet{}, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	existing, err := s.get(ctx, ids)
	if err != nil {
		return repository.ChangeSet{}, err
	}

	var cs repository.ChangeSet
	for start := 0; start < len(records); start += maxTransactItems {
		end := min(start+maxTransactItems, len(records))
		chunk := records[start:end]

		actions := make([]types.TransactWriteItem, 0, len(chunk))
		for _, r := range chunk {
			action, err := s.action(r, mode)
			if err != nil {
				return repository.ChangeSet{}, err
			}
			actions = append(actions, action)
		}
		if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: actions}); err != nil {
			return repository.ChangeSet{}, transactError(err, chunk, mode)
		}

		for _, r := range chunk {
			old, exists := existing[r.ID]
			switch {
			case mode == modeDelete:
				cs.Deleted = append(cs.Deleted, old)
			case exists:
				cs.Updated = append(cs.Updated, r.Clone())
			default:
				cs.Created = append(cs.Created, r.Clone())
			}
		}
	}

	s.logger.Debug("records written",
		zap.Int("created", len(cs.Created)),
		zap.Int("updated", len(cs.Updated)),
		zap.Int("deleted", len(cs.Deleted)))
	s.hub.Publish(cs)
	return cs, nil
}

func (s *Store) action(r repository.Record, mode writeMode) (types.TransactWriteItem, error) {
	var cond expression.ConditionBuilder
	switch mode {
	case modeCreate:
		cond = expression.AttributeNotExists(expression.Name(attrID))
	case modeUpdate, modeDelete:
		cond = expression.AttributeExists(expression.Name(attrID))
	}

	var expr *expression.Expression
	if mode != modeUpsert {
		built, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return types.TransactWriteItem{}, apperrors.Internal("EXPRESSION_BUILD_FAILED", "cannot build condition").WithCause(err).Build()
		}
		expr = &built
	}

	if mode == modeDelete {
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                aws.String(s.table),
			Key:                      key(r.ID),
			ConditionExpression:      expr.Condition(),
			ExpressionAttributeNames: expr.Names(),
		}}, nil
	}

	fields := r.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	av, err := attributevalue.MarshalMap(item{ID: r.ID, Kind: r.Kind, Fields: fields})
	if err != nil {
		return types.TransactWriteItem{}, apperrors.Internal("ENCODE_FAILED", "cannot encode record").WithDetails(r.ID).WithCause(err).Build()
	}
	put := &types.Put{TableName: aws.String(s.table), Item: av}
	if expr != nil {
		put.ConditionExpression = expr.Condition()
		put.ExpressionAttributeNames = expr.Names()
	}
	return types.TransactWriteItem{Put: put}, nil
}

// get returns the stored records among ids.
func (s *Store) get(ctx context.Context, ids []string) (map[string]repository.Record, error) {
	result := make(map[string]repository.Record, len(ids))
	for start := 0; start < len(ids); start += maxBatchGetKeys {
		end := min(start+maxBatchGetKeys, len(ids))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, key(id))
		}

		request := map[string]types.KeysAndAttributes{s.table: {Keys: keys, ConsistentRead: aws.Bool(true)}}
		for len(request) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, storeError("BatchGetItem", err)
			}
			records, err := decode(out.Responses[s.table])
			if err != nil {
				return nil, err
			}
			for _, r := range records {
				result[r.ID] = r
			}
			request = out.UnprocessedKeys
		}
	}
	return result, nil
}

// Read scans the table. Ordering and limit are applied in process.
func (s *Store) Read(ctx context.Context, q repository.Query) ([]repository.Record, error) {
	var records []repository.Record
	err := s.scan(ctx, q.EffectiveFilter(), func(page []repository.Record) error {
		records = append(records, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repository.Apply(records, repository.Query{Order: q.Order, Limit: q.Limit}), nil
}

// ReadPaged streams unordered, unlimited reads page by page and falls back
// to Read otherwise.
func (s *Store) ReadPaged(ctx context.Context, q repository.Query, pageSize int, fn func([]repository.Record) error) error {
	if pageSize <= 0 {
		pageSize = repository.DefaultPageSize
	}
	if len(q.Order) > 0 || q.Limit > 0 {
		records, err := s.Read(ctx, q)
		if err != nil {
			return err
		}
		return repository.Page(records, pageSize, fn)
	}

	var buffer []repository.Record
	err := s.scan(ctx, q.EffectiveFilter(), func(page []repository.Record) error {
		buffer = append(buffer, page...)
		for len(buffer) >= pageSize {
			if err := fn(buffer[:pageSize:pageSize]); err != nil {
				return err
			}
			buffer = buffer[pageSize:]
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(buffer) > 0 {
		return fn(buffer)
	}
	return nil
}

// Count returns the number of records matching f.
func (s *Store) Count(ctx context.Context, f repository.Filter) (int64, error) {
	var n int64
	err := s.scan(ctx, f, func(page []repository.Record) error {
		n += int64(len(page))
		return nil
	})
	return n, err
}

// Subscribe delivers the changes matching f to handler.
func (s *Store) Subscribe(ctx context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error) {
	return s.hub.Subscribe(ctx, f, handler)
}

// scan walks every scan page, prefiltered server side where possible, and
// hands the records matching f to fn.
func (s *Store) scan(ctx context.Context, f repository.Filter, fn func([]repository.Record) error) error {
	input := &dynamodb.ScanInput{TableName: aws.String(s.table), ConsistentRead: aws.Bool(true)}
	if cond, ok := pushdown(f); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return apperrors.Internal("EXPRESSION_BUILD_FAILED", "cannot build filter").WithCause(err).Build()
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return storeError("Scan", err)
		}
		records, err := decode(out.Items)
		if err != nil {
			return err
		}
		if matched := repository.MatchAll(f, records); len(matched) > 0 {
			if err := fn(matched); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func decode(items []map[string]types.AttributeValue) ([]repository.Record, error) {
	var raw []item
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, apperrors.Internal("DECODE_FAILED", "cannot decode records").WithCause(err).Build()
	}
	records := make([]repository.Record, len(raw))
	for i, it := range raw {
		records[i] = repository.Record{ID: it.ID, Kind: it.Kind, Fields: it.Fields}
	}
	return records, nil
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrID: &types.AttributeValueMemberS{Value: id}}
}

// transactError maps a cancelled transaction to CONFLICT or NOT_FOUND for
// the first record whose condition failed.
func transactError(err error, chunk []repository.Record, mode writeMode) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) != "ConditionalCheckFailed" || i >= len(chunk) {
				continue
			}
			r := chunk[i]
			if mode == modeCreate {
				return apperrors.Conflict("RECORD_EXISTS", "record already exists").
					WithResource(r.Kind).WithDetails(r.ID).WithCause(err).Build()
			}
			return apperrors.NotFound("RECORD_NOT_FOUND", "record does not exist").
				WithResource(r.Kind).WithDetails(r.ID).WithCause(err).Build()
		}
	}
	return storeError("TransactWriteItems", err)
}

func checkBatch(records []repository.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return apperrors.Validation("EMPTY_RECORD_ID", "record id is empty").WithResource(r.Kind).Build()
		}
		if _, dup := seen[r.ID]; dup {
			return apperrors.Validation("DUPLICATE_RECORD_ID", "record id appears twice in one batch").
				WithResource(r.Kind).WithDetails(r.ID).Build()
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// storeError classifies a DynamoDB failure. Throttling and service-side
// faults surface as UNAVAILABLE so the circuit breaker and callers can back
// off; a missing table is reported as an external misconfiguration.
func storeError(op string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ProvisionedThroughputExceededException", "RequestLimitExceeded",
			"ThrottlingException", "InternalServerError", "ServiceUnavailable":
			return apperrors.Unavailable("DYNAMODB_THROTTLED", "dynamodb "+op+" was throttled").
				WithOperation(op).
				WithDetails(ae.ErrorMessage()).
				WithRetryable(true).
				WithCause(err).
				Build()
		case "ResourceNotFoundException":
			return apperrors.External("DYNAMODB_TABLE_NOT_FOUND", "dynamodb table not found").
				WithOperation(op).
				WithDetails(ae.ErrorMessage()).
				WithCause(err).
				Build()
		}
	}
	return apperrors.External("DYNAMODB_ERROR", "dynamodb "+op+" failed").
		WithOperation(op).
		WithCause(err).
		Build()
}
