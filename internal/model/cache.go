package model

import "time"

// CacheEntry is one locally stored media blob addressed by its cache key.
type CacheEntry struct {
	Key         string
	Data        []byte
	ContentType string
	SourceURL   string
	Size        int64
	CreatedAt   time.Time
}
