package store

import (
	"sort"
	"strings"
)

// SortRecords orders records in place by q's sort keys.
// The sort is stable, so callers pass records in their backend's natural order
// and equal keys keep it.
func SortRecords(records []*Record, q Query) {
	orders := q.Orders()
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		for _, o := range orders {
			if c := compare(a, b, o, q.ParentType); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compare(a, b *Record, o Order, parentType string) int {
	switch o {
	case OrderPosition:
		pa, pb := a.Link(parentType).Position, b.Link(parentType).Position
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	case OrderTitle:
		return strings.Compare(a.Title, b.Title)
	case OrderCreated:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}
