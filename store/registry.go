package store

import (
	"fmt"
	"sort"
)

// Relation describes a one-to-many relation between a parent type and a child type.
// The child holds the reference.
type Relation struct {
	// ParentType is the parent record type (e.g., "hoverkraft").
	ParentType string

	// ChildType is the child record type (e.g., "crew").
	ChildType string

	// RelativePosition declares a position field on the child scoped to this relation.
	RelativePosition bool
}

// Validate checks the descriptor is usable as storage attribute names.
func (r Relation) Validate() error {
	if err := validTypeName("parent", r.ParentType); err != nil {
		return err
	}
	return validTypeName("child", r.ChildType)
}

// String returns "parent->child".
func (r Relation) String() string {
	return r.ParentType + "->" + r.ChildType
}

// ValidateType checks a single record type name.
func ValidateType(name string) error {
	return validTypeName("record", name)
}

func validTypeName(side, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s type is required", ErrValidation, side)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return fmt.Errorf("%w: %s type %q must match [a-z0-9_]+", ErrValidation, side, name)
		}
	}
	return nil
}

// Registry holds all configured relations.
type Registry struct {
	relationships []Relation
	byParent      map[string][]Relation
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relation{},
		byParent:      make(map[string][]Relation),
	}
}

// Register adds a relation to the registry.
// A relation for the same parent and child types replaces the earlier one.
func (r *Registry) Register(rel Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	for i, existing := range r.relationships {
		if existing.ParentType == rel.ParentType && existing.ChildType == rel.ChildType {
			r.relationships[i] = rel
			r.reindex()
			return nil
		}
	}
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
	return nil
}

func (r *Registry) reindex() {
	r.byParent = make(map[string][]Relation)
	for _, rel := range r.relationships {
		r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
	}
}

// Lookup returns the relation between parentType and childType.
func (r *Registry) Lookup(parentType, childType string) (Relation, bool) {
	for _, rel := range r.byParent[parentType] {
		if rel.ChildType == childType {
			return rel, true
		}
	}
	return Relation{}, false
}

// ChildrenOf returns all child relations for a given parent type.
func (r *Registry) ChildrenOf(parentType string) []Relation {
	return r.byParent[parentType]
}

// AllRelationships returns all registered relations.
func (r *Registry) AllRelationships() []Relation {
	return r.relationships
}

// HasChildren returns true if the parent type has any registered child relations.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.byParent[parentType]) > 0
}

// HasParents returns true if the child type is the child of any registered relation.
func (r *Registry) HasParents(childType string) bool {
	for _, rel := range r.relationships {
		if rel.ChildType == childType {
			return true
		}
	}
	return false
}

// Types returns every parent and child type named by a relation, sorted.
func (r *Registry) Types() []string {
	seen := make(map[string]struct{})
	for _, rel := range r.relationships {
		seen[rel.ParentType] = struct{}{}
		seen[rel.ChildType] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
