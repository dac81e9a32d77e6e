package asset

import (
	"strings"
	"time"
)

const MaxUploadSize = 200 * 1024 * 1024 // 200 MB

const (
	WebVideoMimeType  = "video/webm"
	WebVideoExtension = ".webm"
)

// CacheOptions tune how cached URLs are refreshed and awaited.
type CacheOptions struct {
	// FollowerTimeout bounds how long a caller waits for another caller
	// materialising the same resource.
	FollowerTimeout time.Duration
	// RetryAfter is the age after which a fetched or failed URL is fetched again.
	RetryAfter time.Duration
}

func (o CacheOptions) withDefaults() CacheOptions {
	if o.FollowerTimeout <= 0 {
		o.FollowerTimeout = time.Minute
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = 10 * time.Minute
	}
	return o
}

func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}
