// Package slideshow cycles the current playlist on a fixed interval.
package slideshow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signage-player/webplayer/internal/mediacache"
	"github.com/signage-player/webplayer/internal/model"
)

type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Frame is what the renderer should display.
type Frame struct {
	Index       int                `json:"index"`
	Total       int                `json:"total"`
	Item        model.PlaylistItem `json:"item"`
	Source      string             `json:"source"`
	Cached      bool               `json:"cached"`
	ContentType string             `json:"contentType,omitempty"`
}

// HandleResolver maps a media URL to its cached local handle.
type HandleResolver interface {
	Handle(rawURL string) (mediacache.Handle, bool)
}

type Renderer interface {
	Show(frame Frame)
	Idle()
}

// Next advances a playback index, wrapping at length.
func Next(index, length int) int {
	if length <= 0 {
		return 0
	}
	return (index + 1) % length
}

type Driver struct {
	interval time.Duration
	resolver HandleResolver
	renderer Renderer
	logger   *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	started     bool
	items       []model.PlaylistItem
	fingerprint string
	index       int
	generation  uint64
	cancelTimer context.CancelFunc
	wg          sync.WaitGroup
}

func New(interval time.Duration, resolver HandleResolver, renderer Renderer, logger *slog.Logger) *Driver {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Driver{interval: interval, resolver: resolver, renderer: renderer, logger: logger}
}

// Start arms the timer for the current playlist; ctx bounds every timer.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.started = true
	d.restartTimerLocked()
	d.mu.Unlock()
	d.render()
}

// Stop tears down the timer and waits for it to exit.
func (d *Driver) Stop() {
	d.mu.Lock()
	d.started = false
	d.generation++
	if d.cancelTimer != nil {
		d.cancelTimer()
		d.cancelTimer = nil
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// SetPlaylist makes a snapshot current. The index resets to 0; the timer is
// recreated only when the playlist content changed.
func (d *Driver) SetPlaylist(playlist model.Playlist) {
	d.mu.Lock()
	fingerprint := playlist.Fingerprint()
	changed := fingerprint != d.fingerprint
	d.items = append([]model.PlaylistItem(nil), playlist.Items...)
	d.fingerprint = fingerprint
	d.index = 0
	if changed {
		d.restartTimerLocked()
	}
	d.mu.Unlock()

	if changed {
		d.logger.Info("slideshow playlist changed", "items", len(playlist.Items), "state", d.State())
	}
	d.render()
}

// Tick advances to the next item and renders it.
func (d *Driver) Tick() {
	d.mu.Lock()
	d.index = Next(d.index, len(d.items))
	d.mu.Unlock()
	d.render()
}

// Refresh re-renders the current item, picking up newly cached handles.
func (d *Driver) Refresh() {
	d.render()
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return StateIdle
	}
	return StatePlaying
}

func (d *Driver) Index() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index
}

// Current returns the frame at the current index; false while idle.
func (d *Driver) Current() (Frame, bool) {
	d.mu.Lock()
	if len(d.items) == 0 {
		d.mu.Unlock()
		return Frame{}, false
	}
	index := d.index
	total := len(d.items)
	item := d.items[index]
	d.mu.Unlock()

	frame := Frame{Index: index, Total: total, Item: item, Source: item.Media.URL}
	if d.resolver != nil {
		if h, ok := d.resolver.Handle(item.Media.URL); ok {
			frame.Source = h.URL
			frame.Cached = true
			frame.ContentType = h.ContentType
		}
	}
	return frame, true
}

func (d *Driver) render() {
	if d.renderer == nil {
		return
	}
	frame, ok := d.Current()
	if !ok {
		d.renderer.Idle()
		return
	}
	d.renderer.Show(frame)
}

func (d *Driver) restartTimerLocked() {
	d.generation++
	if d.cancelTimer != nil {
		d.cancelTimer()
		d.cancelTimer = nil
	}
	if !d.started || len(d.items) == 0 {
		return
	}
	timerCtx, cancel := context.WithCancel(d.ctx)
	d.cancelTimer = cancel
	d.wg.Add(1)
	go d.loop(timerCtx, d.generation)
}

func (d *Driver) loop(ctx context.Context, generation uint64) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			stale := generation != d.generation
			if !stale {
				d.index = Next(d.index, len(d.items))
			}
			d.mu.Unlock()
			if stale {
				return
			}
			d.render()
		}
	}
}
