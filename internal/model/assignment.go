package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAssignment marks payloads that fail strict assignment decoding.
var ErrInvalidAssignment = errors.New("invalid screen assignment")

var registrationCodePattern = regexp.MustCompile(`^[1-9]-\d{4}-\d{4}$`)

// RegistrationCode binds a player instance to a screen record, format D-DDDD-DDDD.
type RegistrationCode string

func (c RegistrationCode) Valid() bool {
	return registrationCodePattern.MatchString(string(c))
}

func (c RegistrationCode) String() string {
	return string(c)
}

type MediaType string

const (
	MediaTypeImage    MediaType = "IMAGE"
	MediaTypeVideo    MediaType = "VIDEO"
	MediaTypeAudio    MediaType = "AUDIO"
	MediaTypeHTML     MediaType = "HTML"
	MediaTypeRSS      MediaType = "RSS"
	MediaTypeDocument MediaType = "DOCUMENT"
)

// ParseMediaType normalizes wire values; an empty value is accepted as unknown.
func ParseMediaType(raw string) (MediaType, bool) {
	switch MediaType(strings.ToUpper(strings.TrimSpace(raw))) {
	case MediaTypeImage:
		return MediaTypeImage, true
	case MediaTypeVideo:
		return MediaTypeVideo, true
	case MediaTypeAudio:
		return MediaTypeAudio, true
	case MediaTypeHTML:
		return MediaTypeHTML, true
	case MediaTypeRSS:
		return MediaTypeRSS, true
	case MediaTypeDocument:
		return MediaTypeDocument, true
	case "":
		return "", true
	default:
		return "", false
	}
}

// MediaAsset is a remote media file referenced by a playlist item.
type MediaAsset struct {
	ID              int64     `json:"id,omitempty"`
	Name            string    `json:"name,omitempty"`
	Type            MediaType `json:"type,omitempty"`
	URL             string    `json:"url"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
}

// PlaylistItem places one media asset in a playlist.
type PlaylistItem struct {
	ID               int64      `json:"id,omitempty"`
	Position         int        `json:"position,omitempty"`
	DurationOverride *int       `json:"durationOverride,omitempty"`
	TransitionEffect string     `json:"transitionEffect,omitempty"`
	Media            MediaAsset `json:"media"`
}

// Playlist is an ordered snapshot; slice order is display order.
type Playlist struct {
	ID    int64          `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Items []PlaylistItem `json:"items"`
}

// URLs returns media URLs in display order.
func (p Playlist) URLs() []string {
	urls := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		urls = append(urls, item.Media.URL)
	}
	return urls
}

// Fingerprint identifies playlist content for timer recreation.
func (p Playlist) Fingerprint() string {
	return fmt.Sprintf("%d|%s", len(p.Items), strings.Join(p.URLs(), "|"))
}

// ScreenInfo carries optional screen metadata sent with an assignment.
type ScreenInfo struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

// Assignment is the server's declaration of what a device should render.
type Assignment struct {
	DeviceID     string      `json:"deviceId"`
	ScreenUpdate bool        `json:"screenUpdate"`
	Playlist     Playlist    `json:"playlist"`
	Screen       *ScreenInfo `json:"screen,omitempty"`
}

// For reports whether the assignment targets the given device.
func (a Assignment) For(code RegistrationCode) bool {
	return code != "" && a.DeviceID == string(code)
}

// DecodeAssignment strictly decodes a JSON assignment payload.
func DecodeAssignment(body []byte) (Assignment, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return Assignment{}, fmt.Errorf("%w: payload is not a JSON object", ErrInvalidAssignment)
	}

	var wire struct {
		DeviceID     *string     `json:"deviceId"`
		ScreenUpdate bool        `json:"screenUpdate"`
		Playlist     *Playlist   `json:"playlist"`
		Screen       *ScreenInfo `json:"screen"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", ErrInvalidAssignment, err)
	}
	if wire.DeviceID == nil || strings.TrimSpace(*wire.DeviceID) == "" {
		return Assignment{}, fmt.Errorf("%w: missing deviceId", ErrInvalidAssignment)
	}

	out := Assignment{
		DeviceID:     strings.TrimSpace(*wire.DeviceID),
		ScreenUpdate: wire.ScreenUpdate,
		Screen:       wire.Screen,
	}
	if wire.Playlist != nil {
		out.Playlist = *wire.Playlist
	}
	if out.Playlist.Items == nil {
		out.Playlist.Items = []PlaylistItem{}
	}
	for i := range out.Playlist.Items {
		item := &out.Playlist.Items[i]
		item.Media.URL = strings.TrimSpace(item.Media.URL)
		if item.Media.URL == "" {
			return Assignment{}, fmt.Errorf("%w: item %d has no media url", ErrInvalidAssignment, i)
		}
		mediaType, ok := ParseMediaType(string(item.Media.Type))
		if !ok {
			return Assignment{}, fmt.Errorf("%w: item %d has unknown media type %q", ErrInvalidAssignment, i, item.Media.Type)
		}
		item.Media.Type = mediaType
	}
	return out, nil
}
