package mediacache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

const (
	// KeyModeFilename keys blobs by the URL's trailing path segment.
	KeyModeFilename = "filename"
	// KeyModeHashed keys blobs by sha256 of the full URL plus the file extension.
	KeyModeHashed = "hashed"
)

// Key derives the cache key for a media URL. Filename mode falls back to the
// full URL when no filename can be extracted.
func Key(rawURL string, mode string) string {
	rawURL = strings.TrimSpace(rawURL)
	name := filename(rawURL)
	if mode == KeyModeHashed {
		sum := sha256.Sum256([]byte(rawURL))
		return hex.EncodeToString(sum[:]) + path.Ext(name)
	}
	if name == "" {
		return rawURL
	}
	return name
}

func filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	switch base {
	case "", ".", "..", "/":
		return ""
	}
	return base
}
