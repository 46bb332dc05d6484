// Package sqlstore provides a relational record store on gorm.
//
// Records live in a "records" table keyed by (type, id) and child references
// in "record_links", one row per child and parent type. Call Migrate before use.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jacentio/onetomany/store"
)

// maxBindVars bounds the ids bound in one IN list.
const maxBindVars = 500

// Store is a gorm-backed record store.
type Store struct {
	db    *gorm.DB
	types mapset.Set[string]
	now   func() time.Time
}

// New creates a store over db that knows the given record types.
func New(db *gorm.DB, types ...string) *Store {
	return &Store{
		db:    db,
		types: mapset.NewSet(types...),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) known(typ string) error {
	if !s.types.Contains(typ) {
		return store.UnknownType(typ)
	}
	return nil
}

// Load returns the record, or ErrNotFound.
func (s *Store) Load(ctx context.Context, typ, id string) (*store.Record, error) {
	if err := s.known(typ); err != nil {
		return nil, err
	}

	var row recordRow
	err := s.db.WithContext(ctx).Where("type = ? AND id = ?", typ, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.NotFound(typ, id)
	}
	if err != nil {
		return nil, err
	}

	links, err := s.links(s.db.WithContext(ctx), typ, []string{id})
	if err != nil {
		return nil, err
	}
	return toRecord(row, links[id]), nil
}

// FindAll returns every record of typ in insertion order.
func (s *Store) FindAll(ctx context.Context, typ string) ([]*store.Record, error) {
	return s.Find(ctx, store.Query{Type: typ})
}

// Find returns the records matching q.
// Rows come back by created_at then id before q's ordering is applied.
func (s *Store) Find(ctx context.Context, q store.Query) ([]*store.Record, error) {
	if err := s.known(q.Type); err != nil {
		return nil, err
	}
	if q.ParentID != "" && q.ParentType == "" {
		return nil, fmt.Errorf("%w: query on %q needs a parent type", store.ErrValidation, q.Type)
	}
	return s.find(s.db.WithContext(ctx), q)
}

func (s *Store) find(db *gorm.DB, q store.Query) ([]*store.Record, error) {
	tx := db.Model(&recordRow{}).Select("records.*").Where("records.type = ?", q.Type)
	if q.ParentID != "" {
		tx = tx.Joins("JOIN record_links ON record_links.child_type = records.type AND record_links.child_id = records.id").
			Where("record_links.parent_type = ? AND record_links.parent_id = ?", q.ParentType, q.ParentID)
	}
	for _, ids := range chunk(q.ExcludeIDs) {
		tx = tx.Where("records.id NOT IN ?", ids)
	}

	var rows []recordRow
	if err := tx.Order("records.created_at, records.id").Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	links, err := s.links(db, q.Type, ids)
	if err != nil {
		return nil, err
	}

	records := make([]*store.Record, len(rows))
	for i, row := range rows {
		records[i] = toRecord(row, links[row.ID])
	}
	store.SortRecords(records, q)
	return records, nil
}

// links loads the link rows of the given children, keyed by child ID.
func (s *Store) links(db *gorm.DB, childType string, ids []string) (map[string][]linkRow, error) {
	out := make(map[string][]linkRow, len(ids))
	for _, part := range chunk(ids) {
		var rows []linkRow
		if err := db.Where("child_type = ? AND child_id IN ?", childType, part).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, l := range rows {
			out[l.ChildID] = append(out[l.ChildID], l)
		}
	}
	return out, nil
}

// Store upserts records in one transaction.
func (s *Store) Store(ctx context.Context, records ...*store.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.check(records); err != nil {
		return err
	}

	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			if err := save(tx, r, now); err != nil {
				return err
			}
		}
		return nil
	})
	return store.Persistence(err)
}

// StoreOwned makes owned the complete set of parent's children of childType
// in one transaction. Current children absent from owned lose their link.
// The parent must exist, otherwise ErrNotFound is returned.
func (s *Store) StoreOwned(ctx context.Context, parent *store.Record, childType string, owned []*store.Record) error {
	if parent == nil || parent.ID == "" {
		return fmt.Errorf("%w: parent record without id", store.ErrValidation)
	}
	if err := s.known(parent.Type); err != nil {
		return err
	}
	if err := s.known(childType); err != nil {
		return err
	}
	if err := s.check(owned); err != nil {
		return err
	}

	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Parent must exist
		var n int64
		if err := tx.Model(&recordRow{}).Where("type = ? AND id = ?", parent.Type, parent.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return store.NotFound(parent.Type, parent.ID)
		}

		// 2. Release current children not in owned
		var current []string
		if err := tx.Model(&linkRow{}).
			Where("child_type = ? AND parent_type = ? AND parent_id = ?", childType, parent.Type, parent.ID).
			Pluck("child_id", &current).Error; err != nil {
			return err
		}
		keep := mapset.NewThreadUnsafeSet[string]()
		for _, r := range owned {
			keep.Add(r.ID)
		}
		released := mapset.NewThreadUnsafeSet(current...).Difference(keep).ToSlice()
		for _, ids := range chunk(released) {
			if err := tx.Where("child_type = ? AND parent_type = ? AND child_id IN ?", childType, parent.Type, ids).
				Delete(&linkRow{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&recordRow{}).Where("type = ? AND id IN ?", childType, ids).
				Update("updated_at", now).Error; err != nil {
				return err
			}
		}

		// 3. Save owned children
		for _, r := range owned {
			if err := save(tx, r, now); err != nil {
				return err
			}
		}

		// 4. Touch the parent
		return tx.Model(&recordRow{}).Where("type = ? AND id = ?", parent.Type, parent.ID).
			Update("updated_at", now).Error
	})
	return store.Persistence(err)
}

// save upserts one record and its links. CreatedAt of an existing row is kept.
func save(tx *gorm.DB, r *store.Record, now time.Time) error {
	row := recordRow{
		Type:      r.Type,
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !r.CreatedAt.IsZero() {
		row.CreatedAt = r.CreatedAt.UTC()
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return err
	}

	for pt, l := range r.Links {
		if !l.Attached() {
			err := tx.Where("child_type = ? AND child_id = ? AND parent_type = ?", r.Type, r.ID, pt).
				Delete(&linkRow{}).Error
			if err != nil {
				return err
			}
			continue
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "child_type"}, {Name: "child_id"}, {Name: "parent_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"parent_id", "position"}),
		}).Create(&linkRow{
			ChildType:  r.Type,
			ChildID:    r.ID,
			ParentType: pt,
			ParentID:   l.ParentID,
			Position:   l.Position,
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// check validates a batch before any of it is written.
func (s *Store) check(records []*store.Record) error {
	for _, r := range records {
		if err := s.known(r.Type); err != nil {
			return err
		}
		if r.ID == "" {
			return fmt.Errorf("%w: %s record without id", store.ErrValidation, r.Type)
		}
	}
	return nil
}

// chunk splits ids into groups of at most maxBindVars.
func chunk(ids []string) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += maxBindVars {
		out = append(out, ids[start:min(start+maxBindVars, len(ids))])
	}
	return out
}
