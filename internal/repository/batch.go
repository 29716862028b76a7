package repository

import "context"

// MaxFilterClauses is the largest number of leaf clauses a single store
// request may carry.
const MaxFilterClauses = 1000

// BatchFilters ORs the filters produced for keys into batches whose leaf count
// stays within limit. Duplicate keys are dropped first. A batch holding a
// single filter is that filter itself.
func BatchFilters[K comparable](keys []K, filterFor func(K) Filter, limit int) []Filter {
	if limit <= 0 {
		limit = MaxFilterClauses
	}

	var batches []Filter
	var current []Filter
	count := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Or(current...))
		current = nil
		count = 0
	}

	seen := make(map[K]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		f := filterFor(key)
		leaves := LeafCount(f)
		if count+leaves > limit && len(current) > 0 {
			flush()
		}
		current = append(current, f)
		count += leaves
	}
	flush()
	return batches
}

// RetrieveFiltered reads the entities matching any of keys, one request per
// batch, and returns them without duplicates. identity names an entity for
// deduplication; first occurrence wins.
func RetrieveFiltered[K comparable, T any](
	ctx context.Context,
	keys []K,
	filterFor func(K) Filter,
	read func(context.Context, Filter) ([]T, error),
	identity func(T) string,
) ([]T, error) {
	var result []T
	seen := make(map[string]struct{})

	for _, batch := range BatchFilters(keys, filterFor, MaxFilterClauses) {
		items, err := read(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			id := identity(item)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			result = append(result, item)
		}
	}
	return result, nil
}
