// Package relation manages ordered one-to-many relations between records.
//
// A [Manager] keeps the children of one parent record for a [store.Relation]:
//
//	rel := store.Relation{ParentType: "hoverkraft", ChildType: "crew", RelativePosition: true}
//	m := relation.New(records, logger)
//
//	ok, err := m.SetRelations(ctx, hoverkraft, rel, []string{"c3", "c1"})
//	crew, err := m.ListRelated(ctx, hoverkraft, rel)
//	candidates, err := m.ListAvailable(ctx, hoverkraft, rel)
//
// Children hold the reference to their parent. When the relation declares a
// relative position, SetRelations leaves the parent's children at positions 0..k-1.
// Moving a child to another parent leaves a gap in the old parent until its next set.
//
// # Set semantics
//
// The ids passed to SetRelations are the complete desired membership. Children
// that stay keep their previous order (not the order of the ids) and are
// renumbered from 0. Children that go are detached and their position reset to 0.
// New children are appended at the bottom in the order listed. Empty and "0"
// ids are skipped.
//
// Released children are stored one at a time before the final batch, which
// writes the staged children together with the parent. A failure in between
// does not roll back earlier releases.
//
// # Host integration
//
// [Controller] adapts a Manager to the CMS property-type contract
// (Read, Set, Options), resolving properties to relations via a [store.Registry].
//
// # Errors
//
// Errors match the sentinels in package store:
//
//   - [store.ErrNotFound] - unknown child type or missing parent
//   - [store.ErrValidation] - malformed descriptor or a listed id that does not resolve
//   - [store.ErrPersistence] - the store failed to write
package relation
