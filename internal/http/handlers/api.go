package handlers

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/player"
)

//go:embed static/index.html
var indexPage []byte

// Players exposes the running player session and its reload control.
type Players interface {
	Session() *player.Session
	Generation() uint64
	RequestReload()
}

// Identity provides the support serial shown on the registration screen.
type Identity interface {
	Serial(ctx context.Context) string
}

// MediaSource reads cached blobs by key.
type MediaSource interface {
	Open(ctx context.Context, key string) (model.CacheEntry, error)
}

// API groups HTTP handlers and dependencies.
type API struct {
	players  Players
	display  *Display
	identity Identity
	media    MediaSource
	logger   *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(
	players Players,
	display *Display,
	identity Identity,
	media MediaSource,
	logger *slog.Logger,
) *API {
	return &API{
		players:  players,
		display:  display,
		identity: identity,
		media:    media,
		logger:   logger,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports process liveness and whether a session is running.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": a.players.Session() != nil,
	})
}

// Index serves the kiosk page.
func (a *API) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
