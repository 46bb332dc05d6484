package store

import (
	"strings"
	"time"
)

// Link is a child's many-to-one reference for one relation.
// The zero Link means the child has no parent for that relation and position 0.
type Link struct {
	// ParentID is the referenced parent's ID. Empty when detached.
	ParentID string

	// Position is the child's relative position among the parent's children.
	Position int
}

// Attached reports whether the link references a parent.
func (l Link) Attached() bool {
	return l.ParentID != ""
}

// Record is a stored content record of some type.
type Record struct {
	// Type is the record type name (e.g., "crew").
	Type string

	// ID is unique within Type.
	ID string

	// Title is the secondary sort key for related lists.
	Title string

	// CreatedAt is set by the backend on first store and gives insertion order.
	CreatedAt time.Time

	// UpdatedAt is set by the backend on every store.
	UpdatedAt time.Time

	// Links maps a parent type to this record's reference to a parent of that type.
	Links map[string]Link
}

// Ref returns the type-qualified reference (e.g., "crew#c1").
func (r *Record) Ref() string {
	return Ref(r.Type, r.ID)
}

// Link returns the record's link for parentType, or the zero Link.
func (r *Record) Link(parentType string) Link {
	if r.Links == nil {
		return Link{}
	}
	return r.Links[parentType]
}

// LinkedTo reports whether the record currently references parent.
func (r *Record) LinkedTo(parent *Record) bool {
	l := r.Link(parent.Type)
	return l.Attached() && l.ParentID == parent.ID
}

// Attach points the record at parentID for parentType with the given position.
func (r *Record) Attach(parentType, parentID string, position int) {
	if r.Links == nil {
		r.Links = make(map[string]Link)
	}
	r.Links[parentType] = Link{ParentID: parentID, Position: position}
}

// Detach clears the reference for parentType and resets its position to 0.
// The zero Link is kept in Links so backends know to clear the stored reference.
func (r *Record) Detach(parentType string) {
	if r.Links == nil {
		r.Links = make(map[string]Link)
	}
	r.Links[parentType] = Link{}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Links != nil {
		c.Links = make(map[string]Link, len(r.Links))
		for k, v := range r.Links {
			c.Links[k] = v
		}
	}
	return &c
}

// Ref builds a type-qualified reference.
func Ref(typ, id string) string {
	return typ + "#" + id
}

// ParseRef splits a type-qualified reference into type and ID.
func ParseRef(ref string) (typ, id string, ok bool) {
	typ, id, ok = strings.Cut(ref, "#")
	if !ok || typ == "" || id == "" {
		return "", "", false
	}
	return typ, id, true
}

// Order is a sort key for Find results. All orders are ascending.
type Order int

const (
	// OrderCreated sorts by insertion order.
	OrderCreated Order = iota

	// OrderPosition sorts by the relative position for Query.ParentType.
	OrderPosition

	// OrderTitle sorts by title.
	OrderTitle
)

// DefaultOrder is the type-default ordering used when a query names none.
var DefaultOrder = []Order{OrderCreated}

// String returns the order name.
func (o Order) String() string {
	switch o {
	case OrderCreated:
		return "created"
	case OrderPosition:
		return "position"
	case OrderTitle:
		return "title"
	}
	return "unknown"
}

// Query selects records of one type.
type Query struct {
	// Type is the record type to query.
	Type string

	// ParentType names the relation used by ParentID and OrderPosition.
	ParentType string

	// ParentID restricts results to records linked to this parent (optional).
	ParentID string

	// ExcludeIDs drops records with these IDs (NOT IN).
	ExcludeIDs []string

	// OrderBy lists sort keys. Empty means DefaultOrder.
	OrderBy []Order
}

// Orders returns the effective sort keys.
func (q Query) Orders() []Order {
	if len(q.OrderBy) == 0 {
		return DefaultOrder
	}
	return q.OrderBy
}
