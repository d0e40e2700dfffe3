package s3util

import (
	"net/url"
	"strings"
)

// DefaultPublicBase returns the virtual-hosted style base URL of bucket.
func DefaultPublicBase(bucket string) string {
	return "https://" + bucket + ".s3.amazonaws.com"
}

// PublicURL joins a public base URL and an object key. Each key segment is
// path-escaped; the "/" separators are kept.
func PublicURL(base, key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}
