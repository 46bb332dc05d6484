// Package shard provides shard key generation for the DynamoDB parent indexes.
package shard

import (
	"fmt"
	"hash/fnv"
)

// ParentKey computes the sharded parent index partition key for a child.
// With numShards=1, all children go to shard "00".
// With numShards>1, children are distributed across shards based on childID hash.
func ParentKey(parentRef, childID string, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", parentRef)
	}
	h := fnv.New32a()
	h.Write([]byte(childID))
	shard := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", parentRef, shard)
}

// ParentKeys returns every shard partition key of parentRef, in shard order.
func ParentKeys(parentRef string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	keys := make([]string, numShards)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s#%02x", parentRef, i)
	}
	return keys
}
