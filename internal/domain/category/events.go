package category

// ChangeEvent carries one batch of changes for a single entity kind.
type ChangeEvent[T any] struct {
	Created []T
	Updated []T
	Deleted []T
}

// Upserted returns created followed by updated entities.
func (e ChangeEvent[T]) Upserted() []T {
	result := make([]T, 0, len(e.Created)+len(e.Updated))
	result = append(result, e.Created...)
	return append(result, e.Updated...)
}

// IsEmpty reports whether the event carries no change.
func (e ChangeEvent[T]) IsEmpty() bool {
	return len(e.Created) == 0 && len(e.Updated) == 0 && len(e.Deleted) == 0
}
