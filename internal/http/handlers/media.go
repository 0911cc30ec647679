package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/signage-player/webplayer/internal/storage"
)

// Media serves one cached blob. Range requests are honoured for video.
func (a *API) Media(w http.ResponseWriter, r *http.Request, key string) {
	// chi matches on RawPath only when the escaping was non-canonical;
	// otherwise the parameter is already decoded.
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(key); err == nil {
			key = unescaped
		}
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "invalid_key", "Media key is required")
		return
	}
	entry, err := a.media.Open(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Media not cached")
		return
	}
	if err != nil {
		a.logger.Error("media read failed", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "media_read_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, key, entry.CreatedAt, bytes.NewReader(entry.Data))
}
