package handlers

import (
	"sync"
	"time"

	"github.com/signage-player/webplayer/internal/slideshow"
)

// Display is the slideshow renderer behind the kiosk page. It keeps the
// last frame so polling clients can pick it up.
type Display struct {
	mu        sync.RWMutex
	frame     *slideshow.Frame
	sequence  uint64
	updatedAt time.Time
}

func NewDisplay() *Display {
	return &Display{}
}

func (d *Display) Show(frame slideshow.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = &frame
	d.sequence++
	d.updatedAt = time.Now().UTC()
}

func (d *Display) Idle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = nil
	d.sequence++
	d.updatedAt = time.Now().UTC()
}

// Snapshot returns the shown frame (nil when idle) and its sequence number.
func (d *Display) Snapshot() (*slideshow.Frame, uint64, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.frame == nil {
		return nil, d.sequence, d.updatedAt
	}
	cp := *d.frame
	return &cp, d.sequence, d.updatedAt
}
