package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jacentio/onetomany/internal/metrics"
	"github.com/jacentio/onetomany/store"
)

// RecordStore is the persistence collaborator of a Manager.
//
// Implementations: store.Store (DynamoDB), memstore.Store, sqlstore.Store.
type RecordStore interface {
	// Load returns the record, or an error matching store.ErrNotFound.
	Load(ctx context.Context, typ, id string) (*store.Record, error)

	// Find returns the records matching q in q's order.
	Find(ctx context.Context, q store.Query) ([]*store.Record, error)

	// FindAll returns every record of typ in insertion order.
	FindAll(ctx context.Context, typ string) ([]*store.Record, error)

	// Store saves records as one batch.
	Store(ctx context.Context, records ...*store.Record) error

	// StoreOwned replaces parent's children of childType with owned, detaching
	// previous children not in owned, as one batch with the parent.
	StoreOwned(ctx context.Context, parent *store.Record, childType string, owned []*store.Record) error
}

// Manager maintains the children of one parent for a one-to-many relation.
// It is stateless; all state lives in the RecordStore.
type Manager struct {
	records RecordStore
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a new Manager.
func New(records RecordStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		records: records,
		logger:  logger,
	}
}

// NewWithMetrics creates a new Manager that records operations in collector.
func NewWithMetrics(records RecordStore, logger *slog.Logger, collector *metrics.Collector) *Manager {
	m := New(records, logger)
	m.metrics = collector
	return m
}

// SetRelations makes ids the complete set of parent's children for rel.
//
// Empty and "0" ids are skipped and duplicates collapse to their first occurrence.
// With relative positioning, children that stay keep their stored order and are
// renumbered from 0. Released children are detached and stored one by one.
// New children are appended at the bottom in the order given.
//
// The result reports whether any children are attached after the call,
// not whether anything was written.
func (m *Manager) SetRelations(ctx context.Context, parent *store.Record, rel store.Relation, ids []string) (attached bool, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("set", rel.String(), start, err) }()

	if err := checkParent(parent, rel); err != nil {
		return false, err
	}
	ids = normalizeIDs(ids)

	if !rel.RelativePosition {
		return m.replace(ctx, parent, rel, ids)
	}
	return m.reposition(ctx, parent, rel, ids)
}

// replace swaps the owned collection for the loaded ids in one store call.
func (m *Manager) replace(ctx context.Context, parent *store.Record, rel store.Relation, ids []string) (bool, error) {
	owned := make([]*store.Record, 0, len(ids))
	for _, id := range ids {
		child, err := m.loadChild(ctx, rel, id)
		if err != nil {
			return false, err
		}
		child.Attach(rel.ParentType, parent.ID, 0)
		owned = append(owned, child)
	}

	if err := m.records.StoreOwned(ctx, parent, rel.ChildType, owned); err != nil {
		return false, store.Persistence(err)
	}

	m.logger.Debug("relations replaced",
		"parent", parent.Ref(),
		"childType", rel.ChildType,
		"owned", len(owned),
	)
	return len(owned) > 0, nil
}

// reposition applies ids to a relation whose children carry a relative position.
func (m *Manager) reposition(ctx context.Context, parent *store.Record, rel store.Relation, ids []string) (bool, error) {
	// 1. Current children in stored order
	current, err := m.records.Find(ctx, store.Query{
		Type:       rel.ChildType,
		ParentType: rel.ParentType,
		ParentID:   parent.ID,
		OrderBy:    []store.Order{store.OrderPosition},
	})
	if err != nil {
		return false, err
	}

	want := mapset.NewThreadUnsafeSet(ids...)
	retained := mapset.NewThreadUnsafeSet[string]()
	staged := make([]*store.Record, 0, len(ids))
	released := 0

	// 2. Renumber retained children, release the rest immediately
	for _, child := range current {
		if want.Contains(child.ID) {
			child.Attach(rel.ParentType, parent.ID, len(staged))
			staged = append(staged, child)
			retained.Add(child.ID)
			continue
		}
		child.Detach(rel.ParentType)
		if err := m.records.Store(ctx, child); err != nil {
			return false, store.Persistence(err)
		}
		released++
	}

	// 3. Append new children at the bottom
	kept := len(staged)
	for _, id := range ids {
		if retained.Contains(id) {
			continue
		}
		child, err := m.loadChild(ctx, rel, id)
		if err != nil {
			return false, err
		}
		child.Attach(rel.ParentType, parent.ID, len(staged))
		staged = append(staged, child)
	}

	// 4. One batch for the staged children and the parent
	if err := m.records.StoreOwned(ctx, parent, rel.ChildType, staged); err != nil {
		return false, store.Persistence(err)
	}

	m.metrics.Changes(rel.String(), kept, released, len(staged)-kept)
	m.logger.Debug("relations repositioned",
		"parent", parent.Ref(),
		"childType", rel.ChildType,
		"retained", kept,
		"released", released,
		"attached", len(staged)-kept,
	)
	return len(staged) > 0, nil
}

// ListRelated returns parent's children for rel, ordered by position (when the
// relation declares one), then title, then insertion order.
func (m *Manager) ListRelated(ctx context.Context, parent *store.Record, rel store.Relation) (records []*store.Record, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("read", rel.String(), start, err) }()

	if err := checkParent(parent, rel); err != nil {
		return nil, err
	}
	return m.related(ctx, parent, rel)
}

func (m *Manager) related(ctx context.Context, parent *store.Record, rel store.Relation) ([]*store.Record, error) {
	order := []store.Order{store.OrderTitle, store.OrderCreated}
	if rel.RelativePosition {
		order = append([]store.Order{store.OrderPosition}, order...)
	}
	return m.records.Find(ctx, store.Query{
		Type:       rel.ChildType,
		ParentType: rel.ParentType,
		ParentID:   parent.ID,
		OrderBy:    order,
	})
}

// ListAvailable returns the children of rel's type that are not related to parent,
// in insertion order. A nil parent, or one without an ID, yields every child.
func (m *Manager) ListAvailable(ctx context.Context, parent *store.Record, rel store.Relation) (records []*store.Record, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("options", rel.String(), start, err) }()

	if parent == nil || parent.ID == "" {
		if err := store.ValidateType(rel.ChildType); err != nil {
			return nil, err
		}
		return m.records.FindAll(ctx, rel.ChildType)
	}
	if err := checkParent(parent, rel); err != nil {
		return nil, err
	}

	related, err := m.related(ctx, parent, rel)
	if err != nil {
		return nil, err
	}
	exclude := make([]string, len(related))
	for i, r := range related {
		exclude[i] = r.ID
	}

	return m.records.Find(ctx, store.Query{
		Type:       rel.ChildType,
		ExcludeIDs: exclude,
		OrderBy:    store.DefaultOrder,
	})
}

// loadChild loads a listed child. A missing child is a validation error;
// an unknown type stays a plain not-found.
func (m *Manager) loadChild(ctx context.Context, rel store.Relation, id string) (*store.Record, error) {
	child, err := m.records.Load(ctx, rel.ChildType, id)
	if err == nil {
		return child, nil
	}
	if errors.Is(err, store.ErrUnknownType) || !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s does not resolve: %w", store.ErrValidation, store.Ref(rel.ChildType, id), err)
}

func checkParent(parent *store.Record, rel store.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if parent == nil || parent.ID == "" {
		return fmt.Errorf("%w: %s parent without id", store.ErrValidation, rel.ParentType)
	}
	if parent.Type != rel.ParentType {
		return fmt.Errorf("%w: parent %s is not a %s", store.ErrValidation, parent.Ref(), rel.ParentType)
	}
	return nil
}

// normalizeIDs drops empty and "0" ids and keeps the first of each duplicate.
func normalizeIDs(ids []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == "0" || seen.Contains(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	return out
}
