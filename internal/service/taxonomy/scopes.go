package taxonomy

import (
	"context"
	"strings"

	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// ScopeRepository stores scopes. Scope names are unique, ignoring case.
type ScopeRepository struct {
	*Repository[category.Scope]
	categories *Repository[category.Category]
}

// Create stores new scopes. Missing ids are generated.
func (r *ScopeRepository) Create(ctx context.Context, scopes ...category.Scope) ([]category.Scope, error) {
	scopes = r.withIDs(scopes)
	if err := r.check(ctx, scopes); err != nil {
		return nil, err
	}
	return r.create(ctx, scopes)
}

// Update replaces existing scopes.
func (r *ScopeRepository) Update(ctx context.Context, scopes ...category.Scope) ([]category.Scope, error) {
	if err := r.check(ctx, scopes); err != nil {
		return nil, err
	}
	return r.update(ctx, scopes)
}

// CreateOrUpdate stores scopes whether or not they exist.
func (r *ScopeRepository) CreateOrUpdate(ctx context.Context, scopes ...category.Scope) ([]category.Scope, error) {
	scopes = r.withIDs(scopes)
	if err := r.check(ctx, scopes); err != nil {
		return nil, err
	}
	return r.upsert(ctx, scopes)
}

// Delete removes scopes. A scope still referenced by a category cannot be
// deleted.
func (r *ScopeRepository) Delete(ctx context.Context, scopes ...category.Scope) error {
	if len(scopes) == 0 {
		return nil
	}
	for _, s := range scopes {
		if s.ID.IsEmpty() {
			return apperrors.Validation("EMPTY_ID", "scope id must not be empty").Build()
		}
	}
	inUse, err := repository.RetrieveFiltered(ctx, ids(ScopeCodec, scopes),
		func(id string) repository.Filter { return repository.Field(FieldScope).Equal(id) },
		r.categories.Read,
		CategoryCodec.ID,
	)
	if err != nil {
		return err
	}
	if len(inUse) > 0 {
		return apperrors.Conflict("SCOPE_IN_USE", "scope is still used by categories").
			WithResource(KindScope).
			WithDetails(string(inUse[0].Scope)).
			Build()
	}
	return r.delete(ctx, scopes)
}

// GetByName returns the scope called name, ignoring case.
func (r *ScopeRepository) GetByName(ctx context.Context, name string) (category.Scope, error) {
	all, err := r.ReadAll(ctx)
	if err != nil {
		return category.Scope{}, err
	}
	for _, s := range all {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return category.Scope{}, apperrors.NotFound("NOT_FOUND", "scope not found").
		WithResource(KindScope).
		WithDetails(name).
		Build()
}

// check validates the batch and rejects names already used by another scope
// in the store or in the batch.
func (r *ScopeRepository) check(ctx context.Context, scopes []category.Scope) error {
	seenIDs := make(map[category.ScopeID]struct{}, len(scopes))
	batchNames := make(map[string]category.ScopeID, len(scopes))
	for _, s := range scopes {
		if err := category.Validate(s); err != nil {
			return err
		}
		if _, dup := seenIDs[s.ID]; dup {
			return apperrors.Validation("DUPLICATE_ID", "scope appears twice in the batch").WithDetails(string(s.ID)).Build()
		}
		seenIDs[s.ID] = struct{}{}

		key := strings.ToLower(s.Name)
		if _, dup := batchNames[key]; dup {
			return duplicateName(KindScope, s.Name)
		}
		batchNames[key] = s.ID
	}

	existing, err := r.ReadAll(ctx)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if id, ok := batchNames[strings.ToLower(e.Name)]; ok && id != e.ID {
			if _, renamed := seenIDs[e.ID]; renamed {
				// The existing owner of the name is renamed in the same batch.
				continue
			}
			return duplicateName(KindScope, e.Name)
		}
	}
	return nil
}

func duplicateName(kind, name string) error {
	return apperrors.Conflict("DUPLICATE_NAME", "name is already used").
		WithResource(kind).
		WithDetails(name).
		Build()
}
