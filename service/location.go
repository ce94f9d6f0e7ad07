package service

import (
	"fmt"
	"net/url"
	"strings"
)

// OutputLocation builds the storage URI a query service writes results
// under. The result always ends with exactly one "/" and never contains
// an empty path segment, whatever separators bucket and folder carry.
func OutputLocation(scheme, bucket, folder string) (string, error) {
	bucket = cleanPath(bucket)
	if bucket == "" || strings.Contains(bucket, "/") {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidLocation, bucket)
	}
	if folder = cleanPath(folder); folder == "" {
		return fmt.Sprintf("%s://%s/", scheme, bucket), nil
	}
	return fmt.Sprintf("%s://%s/%s/", scheme, bucket, folder), nil
}

// ResultKey is the object key a service names a successful result by
// convention: "{prefix}/{handle}.csv", or "{handle}.csv" without prefix.
func ResultKey(prefix string, handle JobHandle) string {
	if prefix = cleanPath(prefix); prefix == "" {
		return string(handle) + ".csv"
	}
	return prefix + "/" + string(handle) + ".csv"
}

// ParseStorageURI splits "scheme://bucket/key" into its parts. The key may
// be empty.
func ParseStorageURI(uri string) (scheme, bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("%w: %q needs a scheme and bucket", ErrInvalidLocation, uri)
	}
	return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// cleanPath trims surrounding separators and collapses repeated ones.
func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}
