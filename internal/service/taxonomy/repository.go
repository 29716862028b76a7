// Package taxonomy exposes typed repositories for scopes, categories and
// category items over a record store, and the API grouping them.
package taxonomy

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/query"
	"taxonomy-backend/internal/repository"
)

// Repository is the generic read and write path of one entity kind. Every
// store request is restricted to the codec's kind.
type Repository[T any] struct {
	store    repository.Store
	codec    Codec[T]
	logger   *zap.Logger
	pageSize int
	mapField query.FieldMapper
}

// NewRepository creates a repository for codec's kind.
func NewRepository[T any](store repository.Store, codec Codec[T], logger *zap.Logger, pageSize int) *Repository[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = repository.DefaultPageSize
	}
	return &Repository[T]{
		store:    store,
		codec:    codec,
		logger:   logger.With(zap.String("kind", codec.Kind)),
		pageSize: pageSize,
		mapField: query.MapperWith(codec.Properties),
	}
}

func (r *Repository[T]) scoped(f repository.Filter) repository.Filter {
	kind := repository.Field(repository.FieldKind).Equal(r.codec.Kind)
	if f == nil {
		return kind
	}
	if _, ok := f.(repository.TrueFilter); ok {
		return kind
	}
	return repository.And(kind, f)
}

// Read returns the entities matching f.
func (r *Repository[T]) Read(ctx context.Context, f repository.Filter) ([]T, error) {
	return r.Execute(ctx, repository.Where(f))
}

// ReadAll returns every entity of the kind.
func (r *Repository[T]) ReadAll(ctx context.Context) ([]T, error) {
	return r.Read(ctx, repository.True())
}

// TryReadByID returns the entity with id if it exists.
func (r *Repository[T]) TryReadByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if id == "" {
		return zero, false, apperrors.Validation("EMPTY_ID", "id must not be empty").Build()
	}
	items, err := r.Execute(ctx, repository.Query{
		Filter: repository.Field(repository.FieldID).Equal(id),
		Limit:  1,
	})
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// ReadByID returns the entity with id and fails with NOT_FOUND when absent.
func (r *Repository[T]) ReadByID(ctx context.Context, id string) (T, error) {
	entity, ok, err := r.TryReadByID(ctx, id)
	if err != nil {
		return entity, err
	}
	if !ok {
		return entity, apperrors.NotFound("NOT_FOUND", r.codec.Kind+" not found").
			WithResource(r.codec.Kind).
			WithDetails(id).
			Build()
	}
	return entity, nil
}

// ReadByIDs returns the entities with the given ids. Empty and repeated ids
// are ignored; large sets are split into batches.
func (r *Repository[T]) ReadByIDs(ctx context.Context, ids []string) ([]T, error) {
	return r.readByField(ctx, repository.FieldID, ids)
}

// ReadByName returns the entities called name.
func (r *Repository[T]) ReadByName(ctx context.Context, name string) ([]T, error) {
	return r.ReadByNames(ctx, []string{name})
}

// ReadByNames returns the entities whose name is one of names.
func (r *Repository[T]) ReadByNames(ctx context.Context, names []string) ([]T, error) {
	if r.codec.NameField == "" {
		return nil, apperrors.UnsupportedExpression("NO_NAME_FIELD", r.codec.Kind+" has no name").Build()
	}
	return r.readByField(ctx, r.codec.NameField, names)
}

func (r *Repository[T]) readByField(ctx context.Context, field string, values []string) ([]T, error) {
	keys := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			keys = append(keys, v)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return repository.RetrieveFiltered(ctx, keys,
		func(v string) repository.Filter { return repository.Field(field).Equal(v) },
		r.Read,
		r.codec.ID,
	)
}

// ReadPaged streams the entities matching f in pages. A non-positive
// pageSize uses the repository default.
func (r *Repository[T]) ReadPaged(ctx context.Context, f repository.Filter, pageSize int, fn func([]T) error) error {
	if fn == nil {
		return apperrors.Validation("NIL_CALLBACK", "page callback is nil").Build()
	}
	if pageSize <= 0 {
		pageSize = r.pageSize
	}
	return r.store.ReadPaged(ctx, repository.Where(r.scoped(f)), pageSize, func(page []repository.Record) error {
		return fn(r.codec.decodeAll(page))
	})
}

// Count returns the number of entities matching f.
func (r *Repository[T]) Count(ctx context.Context, f repository.Filter) (int64, error) {
	return r.ExecuteCount(ctx, f)
}

// CountAll returns the number of entities of the kind.
func (r *Repository[T]) CountAll(ctx context.Context) (int64, error) {
	return r.Count(ctx, repository.True())
}

// Query starts a composable query over the kind.
func (r *Repository[T]) Query() *query.Query[T] {
	return query.New[T](r)
}

// MapField maps an entity property to its store field.
func (r *Repository[T]) MapField(property string) (string, bool) {
	return r.mapField(property)
}

// Execute reads the entities matching q.
func (r *Repository[T]) Execute(ctx context.Context, q repository.Query) ([]T, error) {
	q.Filter = r.scoped(q.Filter)
	records, err := r.store.Read(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.codec.decodeAll(records), nil
}

// ExecuteCount counts the entities matching f.
func (r *Repository[T]) ExecuteCount(ctx context.Context, f repository.Filter) (int64, error) {
	return r.store.Count(ctx, r.scoped(f))
}

// Subscribe delivers every change of the kind to handler.
func (r *Repository[T]) Subscribe(ctx context.Context, handler func(category.ChangeEvent[T])) (repository.Subscription, error) {
	return r.SubscribeFiltered(ctx, repository.True(), handler)
}

// SubscribeFiltered delivers the changes of the kind matching f to handler.
func (r *Repository[T]) SubscribeFiltered(ctx context.Context, f repository.Filter, handler func(category.ChangeEvent[T])) (repository.Subscription, error) {
	if handler == nil {
		return nil, apperrors.Validation("NIL_HANDLER", "change handler is nil").Build()
	}
	return r.store.Subscribe(ctx, r.scoped(f), func(cs repository.ChangeSet) {
		e := category.ChangeEvent[T]{
			Created: r.codec.decodeAll(cs.Created),
			Updated: r.codec.decodeAll(cs.Updated),
			Deleted: r.codec.decodeAll(cs.Deleted),
		}
		if e.IsEmpty() {
			return
		}
		handler(e)
	})
}

// withIDs assigns a fresh id to every entity that has none.
func (r *Repository[T]) withIDs(entities []T) []T {
	result := make([]T, len(entities))
	for i, e := range entities {
		if r.codec.ID(e) == "" {
			e = r.codec.SetID(e, uuid.New().String())
		}
		result[i] = e
	}
	return result
}

func (r *Repository[T]) create(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	cs, err := r.store.Create(ctx, r.codec.records(entities))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("created", zap.Int("count", len(cs.Created)))
	return entities, nil
}

func (r *Repository[T]) update(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	cs, err := r.store.Update(ctx, r.codec.records(entities))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("updated", zap.Int("count", len(cs.Updated)))
	return entities, nil
}

func (r *Repository[T]) upsert(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	cs, err := r.store.CreateOrUpdate(ctx, r.codec.records(entities))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("saved", zap.Int("created", len(cs.Created)), zap.Int("updated", len(cs.Updated)))
	return entities, nil
}

func (r *Repository[T]) delete(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	cs, err := r.store.Delete(ctx, r.codec.records(entities))
	if err != nil {
		return err
	}
	r.logger.Debug("deleted", zap.Int("count", len(cs.Deleted)))
	return nil
}

func ids[T any](codec Codec[T], entities []T) []string {
	result := make([]string, len(entities))
	for i, e := range entities {
		result[i] = codec.ID(e)
	}
	return result
}
