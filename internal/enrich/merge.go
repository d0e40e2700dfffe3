package enrich

import (
	"fmt"
	"maps"
	"strings"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// MergePolicy decides which side wins when caller metadata and discovered
// metadata share a key.
type MergePolicy string

const (
	DiscoveredWins MergePolicy = "discovered-wins"
	CallerWins     MergePolicy = "caller-wins"
)

// ParseMergePolicy resolves a configured policy name. Empty means
// DiscoveredWins.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DiscoveredWins:
		return DiscoveredWins, nil
	case CallerWins:
		return CallerWins, nil
	}
	return "", fmt.Errorf("unknown metadata merge policy %q (want %q or %q)", s, DiscoveredWins, CallerWins)
}

// DiscoveredFields flattens discovered metadata into map form. weight_grams
// appears only when known; markings is always present.
func DiscoveredFields(d catalog.DiscoveredMetadata) map[string]any {
	fields := map[string]any{}
	if d.WeightGrams != nil {
		fields["weight_grams"] = *d.WeightGrams
	}
	markings := d.Markings
	if markings == nil {
		markings = []string{}
	}
	fields["markings"] = markings
	return fields
}

// Merge returns a new map holding the union of caller metadata and the
// discovered fields. Neither input is modified.
func Merge(caller map[string]any, discovered catalog.DiscoveredMetadata, policy MergePolicy) map[string]any {
	found := DiscoveredFields(discovered)
	out := make(map[string]any, len(caller)+len(found))
	if policy == CallerWins {
		maps.Copy(out, found)
		maps.Copy(out, caller)
		return out
	}
	maps.Copy(out, caller)
	maps.Copy(out, found)
	return out
}
