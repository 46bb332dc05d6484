// Package memstore provides an in-memory record store.
//
// It keeps records in insertion order and is safe for concurrent use. It is
// meant for tests and for embedding the relation manager without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jacentio/onetomany/store"
)

type entry struct {
	seq    uint64
	record *store.Record
}

// Store is an in-memory record store.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	records map[string]map[string]*entry // type -> id -> entry
	now     func() time.Time
}

// New creates a store that knows the given record types.
func New(types ...string) *Store {
	s := &Store{
		records: make(map[string]map[string]*entry, len(types)),
		now:     time.Now,
	}
	for _, t := range types {
		s.records[t] = make(map[string]*entry)
	}
	return s
}

// Load returns a copy of the record, or ErrNotFound.
func (s *Store) Load(_ context.Context, typ, id string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID, ok := s.records[typ]
	if !ok {
		return nil, store.UnknownType(typ)
	}
	e, ok := byID[id]
	if !ok {
		return nil, store.NotFound(typ, id)
	}
	return e.record.Clone(), nil
}

// FindAll returns copies of every record of typ in insertion order.
func (s *Store) FindAll(ctx context.Context, typ string) ([]*store.Record, error) {
	return s.Find(ctx, store.Query{Type: typ})
}

// Find returns copies of the records matching q.
func (s *Store) Find(_ context.Context, q store.Query) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.find(q)
}

func (s *Store) find(q store.Query) ([]*store.Record, error) {
	byID, ok := s.records[q.Type]
	if !ok {
		return nil, store.UnknownType(q.Type)
	}
	if q.ParentID != "" && q.ParentType == "" {
		return nil, fmt.Errorf("%w: query on %q needs a parent type", store.ErrValidation, q.Type)
	}

	excluded := mapset.NewThreadUnsafeSet(q.ExcludeIDs...)
	entries := make([]*entry, 0, len(byID))
	for id, e := range byID {
		if excluded.Contains(id) {
			continue
		}
		if q.ParentID != "" {
			l := e.record.Link(q.ParentType)
			if !l.Attached() || l.ParentID != q.ParentID {
				continue
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	records := make([]*store.Record, len(entries))
	for i, e := range entries {
		records[i] = e.record.Clone()
	}
	store.SortRecords(records, q)
	return records, nil
}

// Store upserts copies of the records atomically.
func (s *Store) Store(_ context.Context, records ...*store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(records); err != nil {
		return err
	}
	s.put(records)
	return nil
}

// StoreOwned makes owned the complete set of parent's children of childType.
// Children linked to parent but not in owned are detached.
func (s *Store) StoreOwned(_ context.Context, parent *store.Record, childType string, owned []*store.Record) error {
	if parent == nil || parent.ID == "" {
		return fmt.Errorf("%w: parent record without id", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parents, ok := s.records[parent.Type]
	if !ok {
		return store.UnknownType(parent.Type)
	}
	pe, ok := parents[parent.ID]
	if !ok {
		return store.NotFound(parent.Type, parent.ID)
	}

	current, err := s.find(store.Query{Type: childType, ParentType: parent.Type, ParentID: parent.ID})
	if err != nil {
		return err
	}
	if err := s.check(owned); err != nil {
		return err
	}

	keep := mapset.NewThreadUnsafeSet[string]()
	for _, r := range owned {
		keep.Add(r.ID)
	}
	batch := append([]*store.Record{}, owned...)
	for _, c := range current {
		if !keep.Contains(c.ID) {
			c.Detach(parent.Type)
			batch = append(batch, c)
		}
	}

	s.put(batch)
	pe.record.UpdatedAt = s.now()
	return nil
}

// check validates a batch before any of it is applied.
func (s *Store) check(records []*store.Record) error {
	for _, r := range records {
		if _, ok := s.records[r.Type]; !ok {
			return store.UnknownType(r.Type)
		}
		if r.ID == "" {
			return fmt.Errorf("%w: %s record without id", store.ErrValidation, r.Type)
		}
	}
	return nil
}

func (s *Store) put(records []*store.Record) {
	now := s.now()
	for _, r := range records {
		c := r.Clone()
		c.UpdatedAt = now
		// Detached links are not kept
		for pt, l := range c.Links {
			if !l.Attached() {
				delete(c.Links, pt)
			}
		}

		byID := s.records[c.Type]
		if e, ok := byID[c.ID]; ok {
			c.CreatedAt = e.record.CreatedAt
			e.record = c
			continue
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		s.seq++
		byID[c.ID] = &entry{seq: s.seq, record: c}
	}
}
