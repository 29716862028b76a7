// Package memory implements the record store in process memory. It backs
// tests, the CLI's scratch mode and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/infrastructure/events"
	"taxonomy-backend/internal/repository"
)

// Store keeps records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]repository.Record
	hub     *events.Hub
	logger  *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		records: make(map[string]repository.Record),
		hub:     events.NewHub(logger),
		logger:  logger,
	}
}

type writeMode int

const (
	modeCreate writeMode = iota
	modeUpdate
	modeUpsert
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

func (s *Store) write(ctx context.Context, records []repository.Record, mode writeMode) (repository.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return repository.ChangeSet{}, err
	}
	if err := checkBatch(records); err != nil {
		return repository.ChangeSet{}, err
	}

	var cs repository.ChangeSet

	s.mu.Lock()
	for _, r := range records {
		_, exists := s.records[r.ID]
		switch {
		case mode == modeCreate && exists:
			s.mu.Unlock()
			return repository.ChangeSet{}, apperrors.Conflict("RECORD_EXISTS", "record already exists").
				WithResource(r.Kind).WithDetails(r.ID).Build()
		case mode == modeUpdate && !exists:
			s.mu.Unlock()
			return repository.ChangeSet{}, apperrors.NotFound("RECORD_NOT_FOUND", "record does not exist").
				WithResource(r.Kind).WithDetails(r.ID).Build()
		}
	}
	for _, r := range records {
		stored := r.Clone()
		if _, exists := s.records[r.ID]; exists {
			cs.Updated = append(cs.Updated, stored)
		} else {
			cs.Created = append(cs.Created, stored)
		}
		s.records[r.ID] = stored
	}
	s.mu.Unlock()

	s.logger.Debug("records written",
		zap.Int("created", len(cs.Created)),
		zap.Int("updated", len(cs.Updated)))
	s.hub.Publish(cs)
	return cs, nil
}

// Delete removes records that must exist.
func (s *Store) Delete(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return repository.ChangeSet{}, err
	}
	if err := checkBatch(records); err != nil {
		return repository.ChangeSet{}, err
	}

	var cs repository.ChangeSet

	s.mu.Lock()
	for _, r := range records {
		if _, exists := s.records[r.ID]; !exists {
			s.mu.Unlock()
			return repository.ChangeSet{}, apperrors.NotFound("RECORD_NOT_FOUND", "record does not exist").
				WithResource(r.Kind).WithDetails(r.ID).Build()
		}
	}
	for _, r := range records {
		cs.Deleted = append(cs.Deleted, s.records[r.ID])
		delete(s.records, r.ID)
	}
	s.mu.Unlock()

	s.logger.Debug("records deleted", zap.Int("deleted", len(cs.Deleted)))
	s.hub.Publish(cs)
	return cs, nil
}

// Read returns the records matching q.
func (s *Store) Read(ctx context.Context, q repository.Query) ([]repository.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return repository.Apply(s.snapshot(), q), nil
}

// ReadPaged reads q and hands the result to fn in pages.
func (s *Store) ReadPaged(ctx context.Context, q repository.Query, pageSize int, fn func([]repository.Record) error) error {
	records, err := s.Read(ctx, q)
	if err != nil {
		return err
	}
	return repository.Page(records, pageSize, fn)
}

// Count returns the number of records matching f.
func (s *Store) Count(ctx context.Context, f repository.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if repository.Match(f, r) {
			n++
		}
	}
	return n, nil
}

// Subscribe delivers the changes matching f to handler.
func (s *Store) Subscribe(ctx context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error) {
	return s.hub.Subscribe(ctx, f, handler)
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// snapshot copies the records ordered by id so unordered reads are stable.
func (s *Store) snapshot() []repository.Record {
	s.mu.RLock()
	result := make([]repository.Record, 0, len(s.records))
	for _, r := range s.records {
		result = append(result, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
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
