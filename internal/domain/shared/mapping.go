package shared

import (
	"fmt"

	apperrors "taxonomy-backend/internal/errors"
)

// OneToMany indexes a parent to a set of children where every child has at
// most one parent. It is not safe for concurrent use; owners guard it.
type OneToMany[P comparable, C comparable] struct {
	children map[P]map[C]struct{}
	parents  map[C]P
}

// NewOneToMany creates an empty mapping.
func NewOneToMany[P comparable, C comparable]() *OneToMany[P, C] {
	return &OneToMany[P, C]{
		children: make(map[P]map[C]struct{}),
		parents:  make(map[C]P),
	}
}

// Add links child to parent. It fails when the child already has a parent.
func (m *OneToMany[P, C]) Add(parent P, child C) error {
	if existing, ok := m.parents[child]; ok {
		return apperrors.Conflict("CHILD_ALREADY_MAPPED", "child already has a parent").
			WithDetails(fmt.Sprintf("child %v is mapped to parent %v", child, existing)).
			Build()
	}
	m.link(parent, child)
	return nil
}

// AddOrUpdate detaches child from any previous parent and links it to parent.
func (m *OneToMany[P, C]) AddOrUpdate(parent P, child C) {
	m.RemoveChild(child)
	m.link(parent, child)
}

func (m *OneToMany[P, C]) link(parent P, child C) {
	set, ok := m.children[parent]
	if !ok {
		set = make(map[C]struct{})
		m.children[parent] = set
	}
	set[child] = struct{}{}
	m.parents[child] = parent
}

// RemoveChild detaches child from its parent and drops the parent bucket once
// it is empty. It reports whether the child was mapped.
func (m *OneToMany[P, C]) RemoveChild(child C) bool {
	parent, ok := m.parents[child]
	if !ok {
		return false
	}
	delete(m.parents, child)
	if set, ok := m.children[parent]; ok {
		delete(set, child)
		if len(set) == 0 {
			delete(m.children, parent)
		}
	}
	return true
}

// RemoveParent detaches every child of parent. The children stay known to the
// caller but are parentless in this index afterwards.
func (m *OneToMany[P, C]) RemoveParent(parent P) bool {
	set, ok := m.children[parent]
	if !ok {
		return false
	}
	for child := range set {
		delete(m.parents, child)
	}
	delete(m.children, parent)
	return true
}

// GetChildren returns the children of parent in no particular order. An
// unknown parent yields an empty slice.
func (m *OneToMany[P, C]) GetChildren(parent P) []C {
	set := m.children[parent]
	result := make([]C, 0, len(set))
	for child := range set {
		result = append(result, child)
	}
	return result
}

// ChildCount returns the number of children of parent.
func (m *OneToMany[P, C]) ChildCount(parent P) int {
	return len(m.children[parent])
}

// TryGetParent returns the parent of child, if any.
func (m *OneToMany[P, C]) TryGetParent(child C) (P, bool) {
	parent, ok := m.parents[child]
	return parent, ok
}

// Contains reports whether child is linked to parent.
func (m *OneToMany[P, C]) Contains(parent P, child C) bool {
	p, ok := m.parents[child]
	return ok && p == parent
}

// ContainsParent reports whether parent has at least one child.
func (m *OneToMany[P, C]) ContainsParent(parent P) bool {
	_, ok := m.children[parent]
	return ok
}

// ContainsChild reports whether child has a parent.
func (m *OneToMany[P, C]) ContainsChild(child C) bool {
	_, ok := m.parents[child]
	return ok
}

// Clear removes every link.
func (m *OneToMany[P, C]) Clear() {
	m.children = make(map[P]map[C]struct{})
	m.parents = make(map[C]P)
}

// ManyToMany is a bidirectional edge set between A and B values. It is not
// safe for concurrent use.
type ManyToMany[A comparable, B comparable] struct {
	forward map[A]map[B]struct{}
	reverse map[B]map[A]struct{}
}

// NewManyToMany creates an empty mapping.
func NewManyToMany[A comparable, B comparable]() *ManyToMany[A, B] {
	return &ManyToMany[A, B]{
		forward: make(map[A]map[B]struct{}),
		reverse: make(map[B]map[A]struct{}),
	}
}

// Add inserts the edge a-b. Adding an existing edge fails; use TryAdd for
// idempotent inserts.
func (m *ManyToMany[A, B]) Add(a A, b B) error {
	if !m.TryAdd(a, b) {
		return apperrors.Conflict("EDGE_EXISTS", "mapping already contains edge").
			WithDetails(fmt.Sprintf("%v -> %v", a, b)).
			Build()
	}
	return nil
}

// TryAdd inserts the edge a-b and reports whether it was new.
func (m *ManyToMany[A, B]) TryAdd(a A, b B) bool {
	if m.Contains(a, b) {
		return false
	}
	fwd, ok := m.forward[a]
	if !ok {
		fwd = make(map[B]struct{})
		m.forward[a] = fwd
	}
	fwd[b] = struct{}{}

	rev, ok := m.reverse[b]
	if !ok {
		rev = make(map[A]struct{})
		m.reverse[b] = rev
	}
	rev[a] = struct{}{}
	return true
}

// Remove deletes the edge a-b and fails when it does not exist.
func (m *ManyToMany[A, B]) Remove(a A, b B) error {
	if !m.TryRemove(a, b) {
		return apperrors.NotFound("EDGE_NOT_FOUND", "mapping does not contain edge").
			WithDetails(fmt.Sprintf("%v -> %v", a, b)).
			Build()
	}
	return nil
}

// TryRemove deletes the edge a-b and reports whether it existed.
func (m *ManyToMany[A, B]) TryRemove(a A, b B) bool {
	if !m.Contains(a, b) {
		return false
	}
	m.unlinkForward(a, b)
	m.unlinkReverse(a, b)
	return true
}

func (m *ManyToMany[A, B]) unlinkForward(a A, b B) {
	fwd := m.forward[a]
	delete(fwd, b)
	if len(fwd) == 0 {
		delete(m.forward, a)
	}
}

func (m *ManyToMany[A, B]) unlinkReverse(a A, b B) {
	rev := m.reverse[b]
	delete(rev, a)
	if len(rev) == 0 {
		delete(m.reverse, b)
	}
}

// Contains reports whether the edge a-b exists.
func (m *ManyToMany[A, B]) Contains(a A, b B) bool {
	_, ok := m.forward[a][b]
	return ok
}

// ContainsForward reports whether a has any edge.
func (m *ManyToMany[A, B]) ContainsForward(a A) bool {
	_, ok := m.forward[a]
	return ok
}

// ContainsReverse reports whether b has any edge.
func (m *ManyToMany[A, B]) ContainsReverse(b B) bool {
	_, ok := m.reverse[b]
	return ok
}

// GetForward returns every B linked to a.
func (m *ManyToMany[A, B]) GetForward(a A) []B {
	set := m.forward[a]
	result := make([]B, 0, len(set))
	for b := range set {
		result = append(result, b)
	}
	return result
}

// GetReverse returns every A linked to b.
func (m *ManyToMany[A, B]) GetReverse(b B) []A {
	set := m.reverse[b]
	result := make([]A, 0, len(set))
	for a := range set {
		result = append(result, a)
	}
	return result
}

// RemoveForward deletes every edge leaving a.
func (m *ManyToMany[A, B]) RemoveForward(a A) bool {
	set, ok := m.forward[a]
	if !ok {
		return false
	}
	for b := range set {
		m.unlinkReverse(a, b)
	}
	delete(m.forward, a)
	return true
}

// RemoveReverse deletes every edge reaching b.
func (m *ManyToMany[A, B]) RemoveReverse(b B) bool {
	set, ok := m.reverse[b]
	if !ok {
		return false
	}
	for a := range set {
		m.unlinkForward(a, b)
	}
	delete(m.reverse, b)
	return true
}

// Clear removes every edge.
func (m *ManyToMany[A, B]) Clear() {
	m.forward = make(map[A]map[B]struct{})
	m.reverse = make(map[B]map[A]struct{})
}
