package sqlstore

import (
	"time"

	"gorm.io/gorm"

	"github.com/jacentio/onetomany/store"
)

// recordRow holds the managed attributes of a record.
type recordRow struct {
	Type      string    `gorm:"primaryKey;not null"`
	ID        string    `gorm:"primaryKey;not null"`
	Title     string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"not null;index:idx_records_created_at"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (r *recordRow) TableName() string {
	return "records"
}

// linkRow is a child's reference for one parent type.
// A detached child has no row.
type linkRow struct {
	ChildType  string `gorm:"primaryKey;not null"`
	ChildID    string `gorm:"primaryKey;not null"`
	ParentType string `gorm:"primaryKey;not null;index:idx_record_links_parent,priority:1"`
	ParentID   string `gorm:"not null;index:idx_record_links_parent,priority:2"`
	Position   int    `gorm:"not null;default:0"`
}

func (l *linkRow) TableName() string {
	return "record_links"
}

// Migrate creates or updates the records and record_links tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&linkRow{}); err != nil {
		return err
	}

	return nil
}

func toRecord(row recordRow, links []linkRow) *store.Record {
	r := &store.Record{
		Type:      row.Type,
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for _, l := range links {
		r.Attach(l.ParentType, l.ParentID, l.Position)
	}
	return r
}
