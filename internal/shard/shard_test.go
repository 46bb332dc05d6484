package shard

import (
	"fmt"
	"strings"
	"testing"
)

func TestParentKey_SingleShard(t *testing.T) {
	// With numShards=1, all children should go to shard "00"
	tests := []struct {
		parentRef string
		childID   string
		expected  string
	}{
		{"hoverkraft#h1", "c1", "hoverkraft#h1#00"},
		{"hoverkraft#h1", "c2", "hoverkraft#h1#00"},
		{"hoverkraft#h2", "c1", "hoverkraft#h2#00"},
		{"project#abc", "xyz", "project#abc#00"},
	}

	for _, tt := range tests {
		result := ParentKey(tt.parentRef, tt.childID, 1)
		if result != tt.expected {
			t.Errorf("ParentKey(%q, %q, 1) = %q, want %q",
				tt.parentRef, tt.childID, result, tt.expected)
		}
	}
}

func TestParentKey_ZeroShards(t *testing.T) {
	// Zero or negative shards should be treated as 1
	result := ParentKey("hoverkraft#h1", "c1", 0)
	if result != "hoverkraft#h1#00" {
		t.Errorf("expected 'hoverkraft#h1#00', got %q", result)
	}

	result = ParentKey("hoverkraft#h1", "c1", -1)
	if result != "hoverkraft#h1#00" {
		t.Errorf("expected 'hoverkraft#h1#00', got %q", result)
	}
}

func TestParentKey_MultipleShards(t *testing.T) {
	parentRef := "hoverkraft#h1"
	numShards := 256

	shardCounts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		pk := ParentKey(parentRef, fmt.Sprintf("crew-%d", i), numShards)

		if !strings.HasPrefix(pk, parentRef+"#") {
			t.Errorf("expected prefix %q#, got %q", parentRef, pk)
		}
		shardCounts[pk[len(parentRef)+1:]]++
	}

	if len(shardCounts) < 10 {
		t.Errorf("expected distribution across multiple shards, got only %d unique shards", len(shardCounts))
	}
}

func TestParentKey_Deterministic(t *testing.T) {
	first := ParentKey("hoverkraft#h1", "c1", 256)
	for i := 0; i < 100; i++ {
		if result := ParentKey("hoverkraft#h1", "c1", 256); result != first {
			t.Errorf("expected deterministic result %q, got %q on iteration %d", first, result, i)
		}
	}
}

func TestParentKey_SameChildDifferentParent(t *testing.T) {
	// Shard depends on the child only, so moving a child keeps its shard number
	a := ParentKey("hoverkraft#h1", "c1", 16)
	b := ParentKey("hoverkraft#h2", "c1", 16)
	if a[len("hoverkraft#h1#"):] != b[len("hoverkraft#h2#"):] {
		t.Errorf("expected same shard suffix, got %q and %q", a, b)
	}
}

func TestParentKey_IsOneOfParentKeys(t *testing.T) {
	for _, n := range []int{1, 2, 16, 256} {
		keys := ParentKeys("hoverkraft#h1", n)
		set := make(map[string]bool, len(keys))
		for _, k := range keys {
			set[k] = true
		}
		for i := 0; i < 200; i++ {
			pk := ParentKey("hoverkraft#h1", fmt.Sprintf("c%d", i), n)
			if !set[pk] {
				t.Fatalf("numShards=%d: key %q not in ParentKeys", n, pk)
			}
		}
	}
}

func TestParentKeys(t *testing.T) {
	tests := []struct {
		name      string
		numShards int
		expected  []string
	}{
		{"single", 1, []string{"p#1#00"}},
		{"zero treated as one", 0, []string{"p#1#00"}},
		{"three", 3, []string{"p#1#00", "p#1#01", "p#1#02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := ParentKeys("p#1", tt.numShards)
			if len(keys) != len(tt.expected) {
				t.Fatalf("expected %d keys, got %d", len(tt.expected), len(keys))
			}
			for i := range keys {
				if keys[i] != tt.expected[i] {
					t.Errorf("key %d: expected %q, got %q", i, tt.expected[i], keys[i])
				}
			}
		})
	}
}

func TestParentKeys_HexFormat(t *testing.T) {
	keys := ParentKeys("hoverkraft#h1", 256)
	if keys[255] != "hoverkraft#h1#ff" {
		t.Errorf("expected last key 'hoverkraft#h1#ff', got %q", keys[255])
	}
}

func BenchmarkParentKey_SingleShard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParentKey("hoverkraft#h1", "c1", 1)
	}
}

func BenchmarkParentKey_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParentKey("hoverkraft#h1", "c1", 256)
	}
}
