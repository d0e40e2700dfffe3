// Package idgen generates opaque identifiers for catalog image rows and
// batch input archives.
package idgen

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ImagePrefix is prepended to every image ID.
const ImagePrefix = "img_"

// NewImageID returns "img_" followed by a ULID: a millisecond timestamp and
// a random suffix. IDs sort by creation time but are not sequential.
func NewImageID() string {
	return ImagePrefix + ulid.Make().String()
}

// New returns a bare lower-case ULID, used for object key prefixes.
func New() string {
	return strings.ToLower(ulid.Make().String())
}
