// Package grouping partitions a flat upload of photographs into one image
// group per item.
//
// Photographers shoot a fixed number of views per item, so the upload
// length must equal numItems * viewsPerItem. How positions map to items
// depends on shooting order and is an explicit Policy:
//
//	contiguous:  item k gets positions [k*views, (k+1)*views)
//	interleaved: image i goes to item i mod numItems (all top views, then
//	             all side views, ...)
package grouping

import (
	"fmt"
	"strings"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// Policy selects how flat positions map to items.
type Policy string

const (
	Contiguous  Policy = "contiguous"
	Interleaved Policy = "interleaved"
)

// ParsePolicy resolves a configured policy name. Empty means Contiguous.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Contiguous:
		return Contiguous, nil
	case Interleaved:
		return Interleaved, nil
	}
	return "", fmt.Errorf("unknown grouping policy %q (want %q or %q)", s, Contiguous, Interleaved)
}

// Group validates the counts and partitions keys into numItems groups of
// viewsPerItem images each. Every input image lands in exactly one group and
// images inside a group keep their original relative order. It performs no
// I/O and fails only with catalog.ErrValidation.
func Group(keys []string, numItems, viewsPerItem int, policy Policy) ([]catalog.ItemGroup, error) {
	if numItems <= 0 {
		return nil, catalog.Validationf("num_items must be a positive integer")
	}
	if viewsPerItem <= 0 {
		return nil, catalog.Validationf("views_per_item must be a positive integer")
	}
	if len(keys) == 0 {
		return nil, catalog.Validationf("no images provided")
	}
	// Compare by division so huge counts cannot overflow into a match.
	if len(keys)%viewsPerItem != 0 || len(keys)/viewsPerItem != numItems {
		return nil, catalog.Validationf("expected %d images (%d items x %d views), but got %d",
			numItems*viewsPerItem, numItems, viewsPerItem, len(keys))
	}
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, catalog.Validationf("image %d has an empty s3Key", i)
		}
	}

	groups := make([]catalog.ItemGroup, numItems)
	for item := range groups {
		groups[item] = catalog.ItemGroup{
			ItemIndex: item,
			Images:    make([]catalog.ImageReference, 0, viewsPerItem),
		}
	}

	// Iterating positions in ascending order keeps each group sorted by
	// SequenceIndex under either policy.
	for pos, key := range keys {
		var item int
		switch policy {
		case Interleaved:
			item = pos % numItems
		default:
			item = pos / viewsPerItem
		}
		groups[item].Images = append(groups[item].Images, catalog.ImageReference{
			SequenceIndex: pos,
			StorageKey:    key,
		})
	}
	return groups, nil
}
