package uniswapv3

import (
	"sort"
)

// PositionSetDiff describes how the positions of a pool changed between two blocks.
type PositionSetDiff struct {
	Additions []PositionRecord `json:"additions,omitempty"`
	Updates   []PositionRecord `json:"updates,omitempty"`
	Deletions []string         `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PositionSetDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func positionChanged(old, new PositionRecord) bool {
	if old.Owner != new.Owner {
		return true
	}
	if old.TickLower != new.TickLower || old.TickUpper != new.TickUpper {
		return true
	}
	if (old.Liquidity == nil) != (new.Liquidity == nil) {
		return true
	}
	return old.Liquidity != nil && !old.Liquidity.Eq(new.Liquidity)
}

// Differ calculates the difference between two position sets of the same pool,
// keyed by position ID. Output slices are sorted by ID.
func Differ(old, new []PositionRecord) PositionSetDiff {
	oldByID := make(map[string]PositionRecord, len(old))
	for _, p := range old {
		oldByID[p.ID] = p
	}
	newByID := make(map[string]PositionRecord, len(new))
	for _, p := range new {
		newByID[p.ID] = p
	}

	var diff PositionSetDiff
	for id, p := range newByID {
		prev, exists := oldByID[id]
		if !exists {
			diff.Additions = append(diff.Additions, p)
			continue
		}
		if positionChanged(prev, p) {
			diff.Updates = append(diff.Updates, p)
		}
	}
	for id := range oldByID {
		if _, exists := newByID[id]; !exists {
			diff.Deletions = append(diff.Deletions, id)
		}
	}

	sort.Slice(diff.Additions, func(i, j int) bool { return diff.Additions[i].ID < diff.Additions[j].ID })
	sort.Slice(diff.Updates, func(i, j int) bool { return diff.Updates[i].ID < diff.Updates[j].ID })
	sort.Strings(diff.Deletions)
	return diff
}
