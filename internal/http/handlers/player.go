package handlers

import (
	"net/http"
	"time"

	"github.com/signage-player/webplayer/internal/mediacache"
	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/slideshow"
)

type nowResponse struct {
	State            slideshow.State        `json:"state"`
	Code             model.RegistrationCode `json:"code"`
	Serial           string                 `json:"serial"`
	Frame            *slideshow.Frame       `json:"frame"`
	Sequence         uint64                 `json:"sequence"`
	UpdatedAt        *time.Time             `json:"updatedAt,omitempty"`
	ReloadGeneration uint64                 `json:"reloadGeneration"`
}

type statusResponse struct {
	Code             model.RegistrationCode `json:"code"`
	State            slideshow.State        `json:"state"`
	Connected        bool                   `json:"connected"`
	Screen           *model.ScreenInfo      `json:"screen,omitempty"`
	PlaylistName     string                 `json:"playlistName,omitempty"`
	PlaylistLength   int                    `json:"playlistLength"`
	Handles          []mediacache.Handle    `json:"handles"`
	Accepted         int                    `json:"accepted"`
	Ignored          int                    `json:"ignored"`
	ReloadGeneration uint64                 `json:"reloadGeneration"`
}

// Now returns what the kiosk page should be showing.
func (a *API) Now(w http.ResponseWriter, r *http.Request) {
	session := a.players.Session()
	if session == nil {
		writeError(w, http.StatusServiceUnavailable, "player_starting", "Player session is starting")
		return
	}
	frame, sequence, updatedAt := a.display.Snapshot()
	resp := nowResponse{
		State:            slideshow.StateIdle,
		Code:             session.Code(),
		Serial:           a.identity.Serial(r.Context()),
		Frame:            frame,
		Sequence:         sequence,
		ReloadGeneration: a.players.Generation(),
	}
	if frame != nil {
		resp.State = slideshow.StatePlaying
	}
	if !updatedAt.IsZero() {
		resp.UpdatedAt = &updatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status reports the session, channel and cache state for support staff.
func (a *API) Status(w http.ResponseWriter, _ *http.Request) {
	session := a.players.Session()
	if session == nil {
		writeError(w, http.StatusServiceUnavailable, "player_starting", "Player session is starting")
		return
	}
	st := session.Status()
	resp := statusResponse{
		Code:             st.Code,
		State:            st.State,
		Connected:        st.Connected,
		Handles:          st.Handles,
		Accepted:         st.Accepted,
		Ignored:          st.Ignored,
		ReloadGeneration: a.players.Generation(),
	}
	if st.Assignment != nil {
		resp.Screen = st.Assignment.Screen
		resp.PlaylistName = st.Assignment.Playlist.Name
		resp.PlaylistLength = len(st.Assignment.Playlist.Items)
	}
	if resp.Handles == nil {
		resp.Handles = []mediacache.Handle{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reload restarts the player session; the kiosk page follows on its next poll.
func (a *API) Reload(w http.ResponseWriter, _ *http.Request) {
	a.players.RequestReload()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
