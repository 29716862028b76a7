package repository

import "sort"

const (
	// FieldID addresses Record.ID in filters and ordering.
	FieldID = "id"
	// FieldKind addresses Record.Kind in filters and ordering.
	FieldKind = "kind"
)

// Record is the store representation of an entity: an identity, the entity
// kind and a flat set of string fields.
type Record struct {
	ID     string            `json:"id"`
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// Get returns the value of a field, resolving FieldID and FieldKind.
func (r Record) Get(field string) string {
	switch field {
	case FieldID:
		return r.ID
	case FieldKind:
		return r.Kind
	}
	return r.Fields[field]
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Kind: r.Kind, Fields: fields}
}

// FieldNames returns the field names of r in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChangeSet describes the effect of one store write.
type ChangeSet struct {
	Created []Record
	Updated []Record
	Deleted []Record
}

// IsEmpty reports whether the change set carries no record.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Filtered keeps only the records matching f.
func (c ChangeSet) Filtered(f Filter) ChangeSet {
	return ChangeSet{
		Created: MatchAll(f, c.Created),
		Updated: MatchAll(f, c.Updated),
		Deleted: MatchAll(f, c.Deleted),
	}
}
