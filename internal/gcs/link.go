package gcs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/zombor/bill-itemizer/internal/common"
)

const gsScheme = "gs://"

var httpsHosts = map[string]bool{
	"storage.googleapis.com":   true,
	"storage.cloud.google.com": true,
}

// ParseLink splits a storage link into bucket and object name. Accepted
// forms are gs://bucket/path and https://storage.googleapis.com/bucket/path
// (or storage.cloud.google.com). The object path must not be empty.
func ParseLink(link string) (bucket, object string, err error) {
	link = strings.TrimSpace(link)

	var rest string
	switch {
	case strings.HasPrefix(link, gsScheme):
		rest = strings.TrimPrefix(link, gsScheme)
	case strings.HasPrefix(link, "https://"):
		u, perr := url.Parse(link)
		if perr != nil || !httpsHosts[strings.ToLower(u.Host)] {
			return "", "", fmt.Errorf("%w: %q", common.ErrInvalidLinkFormat, link)
		}
		rest = strings.TrimPrefix(u.Path, "/")
	default:
		return "", "", fmt.Errorf("%w: %q", common.ErrInvalidLinkFormat, link)
	}

	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", fmt.Errorf("%w: %q must name a bucket and an object", common.ErrInvalidLinkFormat, link)
	}
	return bucket, object, nil
}

// IsLink reports whether link is an accepted storage link
func IsLink(link string) bool {
	_, _, err := ParseLink(link)
	return err == nil
}
