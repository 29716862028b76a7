// Package sqlite implements the record store on an embedded SQLite database.
// Records live in one table; fields are a JSON object addressed with
// json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/infrastructure/events"
	"taxonomy-backend/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id     TEXT PRIMARY KEY,
	kind   TEXT NOT NULL,
	fields TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_kind ON records (kind);
`

// Store is a repository.Store backed by SQLite. Change notifications are
// delivered in process after each committed write.
type Store struct {
	db     *sql.DB
	hub    *events.Hub
	logger *zap.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serializes writers and keeps the read-check-write
	// transactions free of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}
	return &Store{db: db, hub: events.NewHub(logger), logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
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
	if err := checkBatch(records); err != nil {
		return repository.ChangeSet{}, err
	}

	var cs repository.ChangeSet
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			exists, err := recordExists(ctx, tx, r.ID)
			if err != nil {
				return err
			}
			switch {
			case mode == modeCreate && exists:
				return apperrors.Conflict("RECORD_EXISTS", "record already exists").
					WithResource(r.Kind).WithDetails(r.ID).Build()
			case mode == modeUpdate && !exists:
				return apperrors.NotFound("RECORD_NOT_FOUND", "record does not exist").
					WithResource(r.Kind).WithDetails(r.ID).Build()
			}

			fields, err := json.Marshal(r.Fields)
			if err != nil {
				return apperrors.Internal("ENCODE_FAILED", "cannot encode record fields").WithCause(err).Build()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records (id, kind, fields) VALUES (?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, fields = excluded.fields`,
				r.ID, r.Kind, string(fields)); err != nil {
				return storeError("write", err)
			}

			stored := r.Clone()
			if exists {
				cs.Updated = append(cs.Updated, stored)
			} else {
				cs.Created = append(cs.Created, stored)
			}
		}
		return nil
	})
	if err != nil {
		return repository.ChangeSet{}, err
	}

	s.logger.Debug("records written",
		zap.Int("created", len(cs.Created)),
		zap.Int("updated", len(cs.Updated)))
	s.hub.Publish(cs)
	return cs, nil
}

// Delete removes records that must exist.
func (s *Store) Delete(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	if err := checkBatch(records); err != nil {
		return repository.ChangeSet{}, err
	}

	var cs repository.ChangeSet
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			stored, ok, err := readOne(ctx, tx, r.ID)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.NotFound("RECORD_NOT_FOUND", "record does not exist").
					WithResource(r.Kind).WithDetails(r.ID).Build()
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, r.ID); err != nil {
				return storeError("delete", err)
			}
			cs.Deleted = append(cs.Deleted, stored)
		}
		return nil
	})
	if err != nil {
		return repository.ChangeSet{}, err
	}

	s.logger.Debug("records deleted", zap.Int("deleted", len(cs.Deleted)))
	s.hub.Publish(cs)
	return cs, nil
}

// Read returns the records matching q. Without an ordering the database
// applies the limit; otherwise ordering and limit are applied in process.
func (s *Store) Read(ctx context.Context, q repository.Query) ([]repository.Record, error) {
	where, args, err := whereClause(q.EffectiveFilter())
	if err != nil {
		return nil, err
	}
	stmt := `SELECT id, kind, fields FROM records WHERE ` + where + ` ORDER BY id`
	if len(q.Order) == 0 && q.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	records, err := query(ctx, s.db, stmt, args...)
	if err != nil {
		return nil, err
	}
	if len(q.Order) > 0 {
		repository.SortRecords(records, q.Order)
		if q.Limit > 0 && len(records) > q.Limit {
			records = records[:q.Limit]
		}
	}
	return records, nil
}

// ReadPaged hands the records matching q to fn in pages. Unordered,
// unlimited queries page through the table by id.
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

	where, args, err := whereClause(q.EffectiveFilter())
	if err != nil {
		return err
	}
	stmt := `SELECT id, kind, fields FROM records WHERE (` + where + `) AND id > ? ORDER BY id LIMIT ?`
	last := ""
	for {
		page, err := query(ctx, s.db, stmt, append(append([]any(nil), args...), last, pageSize)...)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < pageSize {
			return nil
		}
		last = page[len(page)-1].ID
	}
}

// Count returns the number of records matching f.
func (s *Store) Count(ctx context.Context, f repository.Filter) (int64, error) {
	where, args, err := whereClause(f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&n); err != nil {
		return 0, storeError("count", err)
	}
	return n, nil
}

// Subscribe delivers the changes matching f to handler.
func (s *Store) Subscribe(ctx context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error) {
	return s.hub.Subscribe(ctx, f, handler)
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func query(ctx context.Context, db queryer, stmt string, args ...any) ([]repository.Record, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, storeError("read", err)
	}
	defer rows.Close()

	var result []repository.Record
	for rows.Next() {
		var r repository.Record
		var fields string
		if err := rows.Scan(&r.ID, &r.Kind, &fields); err != nil {
			return nil, storeError("scan", err)
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, apperrors.Internal("DECODE_FAILED", "cannot decode record fields").
				WithDetails(r.ID).WithCause(err).Build()
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("read", err)
	}
	return result, nil
}

func readOne(ctx context.Context, tx *sql.Tx, id string) (repository.Record, bool, error) {
	records, err := query(ctx, tx, `SELECT id, kind, fields FROM records WHERE id = ?`, id)
	if err != nil || len(records) == 0 {
		return repository.Record{}, false, err
	}
	return records[0], true, nil
}

func recordExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, storeError("read", err)
	}
	return true, nil
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

func storeError(op string, err error) error {
	return apperrors.External("SQLITE_"+strings.ToUpper(op), "sqlite "+op+" failed").
		WithOperation(op).
		WithCause(err).
		Build()
}
