// Package store provides the record model and a DynamoDB record store for
// ordered one-to-many relations.
//
// A child record holds its parent reference and, for relations with relative
// positioning, its position among the parent's children. Both live on the child
// item as per-relation attributes:
//
//	ref_<parentType>    parent ID
//	pos_<parentType>    position among the parent's children
//	shard_<parentType>  sharded parent key, the GSI hash key
//
// Each child table carries one GSI per parent type, named IndexPrefix plus the
// parent type, with hash key shard_<parentType> and range key pos_<parentType>.
// The GSI must project all attributes.
//
// Every written item also carries entity_ref ("<type>#<id>"). StoreOwned sets it
// on the parent when missing so hosts' own items can be resolved from a stream.
// Items with a ttl at or before now count as deleted.
//
// # Records and Queries
//
// [Record] is the backend-neutral record. [Query] selects records of one type,
// optionally scoped to a parent, with excluded IDs and an ordering:
//
//	records, err := s.Find(ctx, store.Query{
//	    Type:       "crew",
//	    ParentType: "hoverkraft",
//	    ParentID:   "h1",
//	    OrderBy:    []store.Order{store.OrderPosition},
//	})
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards to spread a busy parent's children over more GSI partitions:
//
//	cfg := store.DefaultConfig()
//	cfg.Tables = map[string]string{"hoverkraft": "hoverkraft", "crew": "crew"}
//	cfg.NumShards = 16
//
// # Errors
//
//   - [ErrNotFound] - record doesn't exist or is deleted
//   - [ErrUnknownType] - record type has no table; also matches ErrNotFound
//   - [ErrValidation] - malformed descriptor, parent or child reference
//   - [ErrPersistence] - a backend write failed
package store
