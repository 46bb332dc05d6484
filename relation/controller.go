package relation

import (
	"context"
	"fmt"

	"github.com/jacentio/onetomany/store"
)

// PropertyType is the Lagan property type handled by Controller.
const PropertyType = "onetomany"

// Property is a host content-model property.
// Name is the child record type the property relates to.
type Property struct {
	Name        string
	Type        string
	Description string
}

// Controller exposes a Manager through the host's property-type controller
// entry points: Read, Set and Options.
type Controller struct {
	manager  *Manager
	registry *store.Registry
}

// NewController creates a controller resolving properties through registry.
func NewController(manager *Manager, registry *store.Registry) *Controller {
	return &Controller{
		manager:  manager,
		registry: registry,
	}
}

// Read returns the records related to rec through prop.
func (c *Controller) Read(ctx context.Context, rec *store.Record, prop Property) ([]*store.Record, error) {
	rel, err := c.relation(rec, prop)
	if err != nil {
		return nil, err
	}
	return c.manager.ListRelated(ctx, rec, rel)
}

// Set makes ids the related records of rec through prop.
// It reports whether any records are related afterwards.
func (c *Controller) Set(ctx context.Context, rec *store.Record, prop Property, ids []string) (bool, error) {
	rel, err := c.relation(rec, prop)
	if err != nil {
		return false, err
	}
	return c.manager.SetRelations(ctx, rec, rel, ids)
}

// Options returns the records that can still be related to rec through prop.
// A nil rec stands for a record that is not created yet.
func (c *Controller) Options(ctx context.Context, rec *store.Record, prop Property) ([]*store.Record, error) {
	if rec == nil {
		if err := checkProperty(prop); err != nil {
			return nil, err
		}
		if !c.registry.HasParents(prop.Name) {
			return nil, fmt.Errorf("%w: no relation to %s registered", store.ErrValidation, prop.Name)
		}
		return c.manager.ListAvailable(ctx, nil, store.Relation{ChildType: prop.Name})
	}
	rel, err := c.relation(rec, prop)
	if err != nil {
		return nil, err
	}
	return c.manager.ListAvailable(ctx, rec, rel)
}

func (c *Controller) relation(rec *store.Record, prop Property) (store.Relation, error) {
	if err := checkProperty(prop); err != nil {
		return store.Relation{}, err
	}
	if rec == nil {
		return store.Relation{}, fmt.Errorf("%w: property %q read without a record", store.ErrValidation, prop.Name)
	}
	rel, ok := c.registry.Lookup(rec.Type, prop.Name)
	if !ok {
		return store.Relation{}, fmt.Errorf("%w: no relation %s->%s registered", store.ErrValidation, rec.Type, prop.Name)
	}
	return rel, nil
}

func checkProperty(prop Property) error {
	if prop.Type != "" && prop.Type != PropertyType {
		return fmt.Errorf("%w: property %q has type %q, want %q", store.ErrValidation, prop.Name, prop.Type, PropertyType)
	}
	return store.ValidateType(prop.Name)
}
