package sqlstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jacentio/onetomany/relation"
	"github.com/jacentio/onetomany/store"
	"github.com/jacentio/onetomany/store/sqlstore"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Each connection to :memory: is its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqlstore.Migrate(db))
	return db
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	return sqlstore.New(openDB(t), "hoverkraft", "crew")
}

func crew(id, title, parentID string, pos int) *store.Record {
	r := &store.Record{Type: "crew", ID: id, Title: title}
	if parentID != "" {
		r.Attach("hoverkraft", parentID, pos)
	}
	return r
}

func recordIDs(records []*store.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestStore_StoreAndLoad(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, crew("c1", "Trinity", "h1", 2)))

	got, err := s.Load(ctx, "crew", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Trinity", got.Title)
	assert.Equal(t, store.Link{ParentID: "h1", Position: 2}, got.Link("hoverkraft"))
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Load(ctx, "crew", "c404")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Load(ctx, "ghost", "g1")
	assert.ErrorIs(t, err, store.ErrUnknownType)
}

func TestStore_UpsertKeepsCreatedAt(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, crew("c1", "Trinity", "", 0)))
	first, err := s.Load(ctx, "crew", "c1")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	update := crew("c1", "Neo", "h1", 0)
	require.NoError(t, s.Store(ctx, update))

	got, err := s.Load(ctx, "crew", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Neo", got.Title)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt), "created_at changed from %v to %v", first.CreatedAt, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt))
	assert.True(t, got.LinkedTo(&store.Record{Type: "hoverkraft", ID: "h1"}))
}

func TestStore_DetachDeletesLink(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := crew("c1", "", "h1", 3)
	require.NoError(t, s.Store(ctx, r))

	r.Detach("hoverkraft")
	require.NoError(t, s.Store(ctx, r))

	got, err := s.Load(ctx, "crew", "c1")
	require.NoError(t, err)
	assert.Equal(t, store.Link{}, got.Link("hoverkraft"))
	assert.Empty(t, got.Links)
}

func TestStore_StoreValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Store(ctx, crew("c1", "", "", 0), &store.Record{Type: "ghost", ID: "g1"})
	assert.ErrorIs(t, err, store.ErrUnknownType)

	_, err = s.Load(ctx, "crew", "c1")
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing stored from a rejected batch")

	assert.ErrorIs(t, s.Store(ctx, &store.Record{Type: "crew"}), store.ErrValidation)
	assert.NoError(t, s.Store(ctx))
}

func TestStore_Find(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx,
		crew("c3", "Morpheus", "h1", 0),
		crew("c1", "Trinity", "h1", 2),
		crew("c2", "Neo", "h1", 1),
		crew("c4", "Niobe", "h2", 0),
		crew("c5", "Apoc", "", 0),
	))

	tests := []struct {
		name     string
		q        store.Query
		expected []string
	}{
		{"all by id within a batch", store.Query{Type: "crew"}, []string{"c1", "c2", "c3", "c4", "c5"}},
		{"by parent", store.Query{Type: "crew", ParentType: "hoverkraft", ParentID: "h1"}, []string{"c1", "c2", "c3"}},
		{"by position", store.Query{Type: "crew", ParentType: "hoverkraft", ParentID: "h1", OrderBy: []store.Order{store.OrderPosition}}, []string{"c3", "c2", "c1"}},
		{"by title", store.Query{Type: "crew", OrderBy: []store.Order{store.OrderTitle}}, []string{"c5", "c3", "c2", "c4", "c1"}},
		{"excluded", store.Query{Type: "crew", ExcludeIDs: []string{"c1", "c4"}}, []string{"c2", "c3", "c5"}},
		{"excluded by parent", store.Query{Type: "crew", ParentType: "hoverkraft", ParentID: "h1", ExcludeIDs: []string{"c2"}}, []string{"c1", "c3"}},
		{"empty parent", store.Query{Type: "crew", ParentType: "hoverkraft", ParentID: "h9"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.Find(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, recordIDs(records))
		})
	}
}

func TestStore_FindInsertionOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"c9", "c1", "c5"} {
		require.NoError(t, s.Store(ctx, crew(id, "", "", 0)))
		time.Sleep(time.Millisecond)
	}

	records, err := s.FindAll(ctx, "crew")
	require.NoError(t, err)
	assert.Equal(t, []string{"c9", "c1", "c5"}, recordIDs(records))
}

func TestStore_FindManyExcluded(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var seed, exclude []*store.Record
	for i := 0; i < 1200; i++ {
		r := crew(fmt.Sprintf("c%04d", i), "", "", 0)
		seed = append(seed, r)
		if i%2 == 0 {
			exclude = append(exclude, r)
		}
	}
	require.NoError(t, s.Store(ctx, seed...))

	records, err := s.Find(ctx, store.Query{Type: "crew", ExcludeIDs: recordIDs(exclude)})
	require.NoError(t, err)
	assert.Len(t, records, 600)
	assert.Equal(t, "c0001", records[0].ID)
}

func TestStore_FindErrors(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Find(ctx, store.Query{Type: "ghost"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Find(ctx, store.Query{Type: "crew", ParentID: "h1"})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestStore_StoreOwned(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	parent := &store.Record{Type: "hoverkraft", ID: "h1"}
	require.NoError(t, s.Store(ctx, parent, crew("c1", "", "h1", 0), crew("c2", "", "h1", 1), crew("c3", "", "", 0)))
	before, err := s.Load(ctx, "hoverkraft", "h1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	require.NoError(t, s.StoreOwned(ctx, parent, "crew", []*store.Record{crew("c3", "", "h1", 0), crew("c2", "", "h1", 1)}))

	related, err := s.Find(ctx, store.Query{Type: "crew", ParentType: "hoverkraft", ParentID: "h1", OrderBy: []store.Order{store.OrderPosition}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c2"}, recordIDs(related))

	c1, err := s.Load(ctx, "crew", "c1")
	require.NoError(t, err)
	assert.Equal(t, store.Link{}, c1.Link("hoverkraft"))

	after, err := s.Load(ctx, "hoverkraft", "h1")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt), "parent not touched")
}

func TestStore_StoreOwnedErrors(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		parent *store.Record
		target error
	}{
		{"nil parent", nil, store.ErrValidation},
		{"parent without id", &store.Record{Type: "hoverkraft"}, store.ErrValidation},
		{"unknown parent type", &store.Record{Type: "ghost", ID: "g1"}, store.ErrUnknownType},
		{"missing parent", &store.Record{Type: "hoverkraft", ID: "h404"}, store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.StoreOwned(ctx, tt.parent, "crew", []*store.Record{crew("c1", "", "h404", 0)})
			assert.ErrorIs(t, err, tt.target)
		})
	}

	// The failed batch must not leave c1 behind
	_, err := s.Load(ctx, "crew", "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_WithManager(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := relation.New(s, nil)
	rel := store.Relation{ParentType: "hoverkraft", ChildType: "crew", RelativePosition: true}

	h1 := &store.Record{Type: "hoverkraft", ID: "h1"}
	require.NoError(t, s.Store(ctx, h1, crew("c1", "", "h1", 0), crew("c2", "", "h1", 1), crew("c3", "", "h1", 2), crew("c4", "", "", 0)))

	ok, err := m.SetRelations(ctx, h1, rel, []string{"c4", "c3", "c1"})
	require.NoError(t, err)
	assert.True(t, ok)

	related, err := m.ListRelated(ctx, h1, rel)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3", "c4"}, recordIDs(related))
	for i, r := range related {
		assert.Equal(t, i, r.Link("hoverkraft").Position)
	}

	available, err := m.ListAvailable(ctx, h1, rel)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, recordIDs(available))
}
