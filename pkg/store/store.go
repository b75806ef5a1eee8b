package store

import (
	"fmt"
	"sort"
	"sync"
)

// Filter reports whether an Object should be included in a List result.
type Filter func(*Object) bool

// ListOptions configures a cursor-paginated List call.
type ListOptions struct {
	// Limit is the maximum number of items to return. Zero is a valid,
	// explicit request for an empty page. Negative values are treated as
	// the default (10). Values above 100 are capped to 100.
	Limit int
	// HasLimit distinguishes "limit=0 was provided" from "limit was not
	// provided at all" (which should default to 10).
	HasLimit bool
	// StartingAfter skips items up to and including this id.
	StartingAfter string
	// EndingBefore takes items strictly before this id. Takes precedence
	// over StartingAfter when both are set.
	EndingBefore string
	// Filter, if non-nil, is applied before pagination.
	Filter Filter
}

// DefaultListOptions returns the zero-value listing: limit 10, no cursors.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 10, HasLimit: true}
}

// PageResult is the cursor-paginated response envelope.
type PageResult struct {
	Data    []*Object
	HasMore bool
}

// Store is a concurrent key-value backing for one resource type.
type Store struct {
	mu        sync.RWMutex
	tableName string
	objects   map[string]*Object

	// globalFallback, when set, is consulted on Get misses so that
	// well-known fixtures (card tokens, built-in payment methods) are
	// visible to every isolated store of this resource type without being
	// copied into each one; List does not include fallback records. Only
	// Tokens and PaymentMethods use this.
	globalFallback *Store
}

// New creates an empty Store for the given resource table (e.g. "customers").
func New(tableName string) *Store {
	return &Store{
		tableName: tableName,
		objects:   make(map[string]*Object),
	}
}

// WithGlobalFallback attaches a shared, read-mostly store consulted on
// lookup misses. Used by Tokens and PaymentMethods to expose pre-seeded
// global fixtures alongside caller-local records.
func (s *Store) WithGlobalFallback(global *Store) *Store {
	s.globalFallback = global
	return s
}

// TableName returns the resource table name.
func (s *Store) TableName() string {
	return s.tableName
}

// Get reads an object by id, falling back to the global namespace (if any)
// on a miss.
func (s *Store) Get(id string) (*Object, bool) {
	s.mu.RLock()
	obj, ok := s.objects[id]
	fallback := s.globalFallback
	s.mu.RUnlock()

	if ok {
		return obj, true
	}
	if fallback != nil {
		return fallback.Get(id)
	}
	return nil, false
}

// Insert adds a new object, returning an error if the id already exists.
func (s *Store) Insert(obj *Object) (*Object, error) {
	if obj == nil || obj.ID == "" {
		return nil, fmt.Errorf("store %s: cannot insert object with empty id", s.tableName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[obj.ID]; exists {
		return nil, fmt.Errorf("store %s: id %q already exists", s.tableName, obj.ID)
	}
	s.objects[obj.ID] = obj
	return obj, nil
}

// Update replaces the stored object for obj.ID, which must already exist.
// Callers are responsible for merge semantics; Update simply writes
// whatever Object it is given.
func (s *Store) Update(obj *Object) (*Object, error) {
	if obj == nil || obj.ID == "" {
		return nil, fmt.Errorf("store %s: cannot update object with empty id", s.tableName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[obj.ID]; !exists {
		return nil, fmt.Errorf("store %s: id %q not found", s.tableName, obj.ID)
	}
	s.objects[obj.ID] = obj
	return obj, nil
}

// Delete removes id from the store. Deleting a nonexistent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
}

// Clear removes every object from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*Object)
}

// Count returns the number of objects currently stored (excluding the
// global fallback namespace, if any).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// All returns every object in the store, unfiltered and unpaginated, in
// the same Created-descending order as List. Used by pkg/snapshot to dump
// and restore a store's full contents; HTTP handlers should use List
// instead so results stay bounded and cursor-paginated.
func (s *Store) All() []*Object {
	return s.snapshotSorted()
}

// LoadAll replaces the store's contents with objs, bypassing Insert's
// duplicate-id check. Used only to restore a snapshot at startup, before
// the store is exposed to any caller.
func (s *Store) LoadAll(objs []*Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*Object, len(objs))
	for _, obj := range objs {
		s.objects[obj.ID] = obj
	}
}

// List returns a cursor-paginated page: items sorted by Created
// descending (ties broken by id ascending), with has_more computed by
// probing one item beyond the requested limit.
func (s *Store) List(opts ListOptions) PageResult {
	limit := opts.Limit
	if !opts.HasLimit {
		limit = 10
	}
	if limit < 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	all := s.snapshotSorted()
	if opts.Filter != nil {
		filtered := make([]*Object, 0, len(all))
		for _, o := range all {
			if opts.Filter(o) {
				filtered = append(filtered, o)
			}
		}
		all = filtered
	}

	start := 0
	if opts.EndingBefore != "" {
		idx := indexOf(all, opts.EndingBefore)
		end := idx
		if idx < 0 {
			end = len(all)
		}
		from := end - limit
		if from < 0 {
			from = 0
		}
		page := all[from:end]
		hasMore := from > 0
		return PageResult{Data: page, HasMore: hasMore}
	} else if opts.StartingAfter != "" {
		idx := indexOf(all, opts.StartingAfter)
		if idx >= 0 {
			start = idx + 1
		}
	}

	end := start + limit
	probe := end < len(all)
	if end > len(all) {
		end = len(all)
	}
	if start > len(all) {
		start = len(all)
	}

	page := all[start:end]
	return PageResult{Data: page, HasMore: probe}
}

func indexOf(objs []*Object, id string) int {
	for i, o := range objs {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// snapshotSorted takes a read lock, copies the object pointers into a
// slice, and sorts by Created desc / id asc. The copy lets callers range
// over a stable view without holding the lock during sort or while the
// caller mutates the page downstream.
func (s *Store) snapshotSorted() []*Object {
	s.mu.RLock()
	all := make([]*Object, 0, len(s.objects))
	for _, o := range s.objects {
		all = append(all, o)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Created != all[j].Created {
			return all[i].Created > all[j].Created
		}
		return all[i].ID < all[j].ID
	})
	return all
}
