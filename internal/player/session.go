// Package player owns the lifecycle of one player session: identity,
// live channel, media cache, persisted state and the slideshow timer.
package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signage-player/webplayer/internal/channel"
	"github.com/signage-player/webplayer/internal/mediacache"
	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/slideshow"
	"github.com/signage-player/webplayer/internal/statestore"
)

const queueSize = 16

// Identity supplies the device registration code.
type Identity interface {
	GetOrCreate(ctx context.Context) model.RegistrationCode
}

// Channel is a live update transport bound to one registration code.
type Channel interface {
	Run(ctx context.Context, deliver func(channel.Event))
	Connected() bool
}

// ChannelFactory opens a transport for the given code.
type ChannelFactory func(code model.RegistrationCode) Channel

type Deps struct {
	Identity      Identity
	Cache         *mediacache.Manager
	State         *statestore.Store
	Channels      ChannelFactory
	Renderer      slideshow.Renderer
	SlideInterval time.Duration
	Logger        *slog.Logger
}

// Status is a point-in-time view of a session for the local surface.
type Status struct {
	Code       model.RegistrationCode `json:"code"`
	State      slideshow.State        `json:"state"`
	Connected  bool                   `json:"connected"`
	Assignment *model.Assignment      `json:"assignment,omitempty"`
	Handles    []mediacache.Handle    `json:"handles"`
	Accepted   int                    `json:"accepted"`
	Ignored    int                    `json:"ignored"`
}

type Session struct {
	identity Identity
	cache    *mediacache.Manager
	state    *statestore.Store
	channels ChannelFactory
	driver   *slideshow.Driver
	reload   func()
	logger   *slog.Logger

	mu       sync.RWMutex
	code     model.RegistrationCode
	current  *model.Assignment
	channel  Channel
	accepted int
	ignored  int
	reloaded bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSession wires a session; reload is called after a full refresh purged
// the cache and must arrange for a new session to replace this one.
func NewSession(deps Deps, reload func()) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if reload == nil {
		reload = func() {}
	}
	return &Session{
		identity: deps.Identity,
		cache:    deps.Cache,
		state:    deps.State,
		channels: deps.Channels,
		driver:   slideshow.New(deps.SlideInterval, deps.Cache, deps.Renderer, logger),
		reload:   reload,
		logger:   logger,
	}
}

// Start restores the last persisted snapshot from the local cache, starts
// the slideshow and then connects the live channel.
func (s *Session) Start(ctx context.Context) {
	sessionCtx, cancel := context.WithCancel(ctx)
	code := s.identity.GetOrCreate(sessionCtx)

	s.mu.Lock()
	s.code = code
	s.cancel = cancel
	s.mu.Unlock()

	var pendingRefresh *model.Assignment
	if restored := s.state.Load(sessionCtx); restored != nil {
		s.setCurrent(*restored)
		res := s.cache.Restore(sessionCtx, restored.Playlist)
		s.logger.Info("playback state restored",
			"items", len(restored.Playlist.Items),
			"cached", res.Cached,
			"missing", res.Missing,
			"screen_update", restored.ScreenUpdate,
		)
		s.driver.SetPlaylist(restored.Playlist)
		if restored.ScreenUpdate {
			pendingRefresh = restored
		}
	}
	s.driver.Start(sessionCtx)

	queue := make(chan model.Assignment, queueSize)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// the store was wiped before the reload; fetch everything again
		if pendingRefresh != nil {
			s.materialize(sessionCtx, *pendingRefresh)
		}
		s.dispatch(sessionCtx, queue)
	}()

	if s.channels == nil {
		s.logger.Warn("no live channel configured; playing persisted state only")
		return
	}
	ch := s.channels(code)
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ch.Run(sessionCtx, func(ev channel.Event) {
			s.enqueue(sessionCtx, queue, ev.Assignment)
		})
	}()
	s.logger.Info("player session started", "code", code)
}

// Stop cancels the session and waits for its goroutines and timer.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.driver.Stop()
}

// enqueue hands an assignment to the dispatcher without blocking the channel
// reader. When the queue is full the oldest pending snapshot is dropped, since
// every snapshot replaces its predecessor; a full refresh requested by a
// dropped snapshot for this device carries over to the newer one.
func (s *Session) enqueue(ctx context.Context, queue chan model.Assignment, assignment model.Assignment) {
	code := s.Code()
	for {
		select {
		case queue <- assignment:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case dropped := <-queue:
			if dropped.ScreenUpdate && dropped.For(code) && assignment.For(code) {
				assignment.ScreenUpdate = true
			}
			s.logger.Warn("update queue full; dropping stale assignment", "device_id", dropped.DeviceID)
		default:
		}
	}
}

func (s *Session) dispatch(ctx context.Context, queue <-chan model.Assignment) {
	for {
		select {
		case <-ctx.Done():
			return
		case assignment := <-queue:
			if ctx.Err() != nil {
				return
			}
			s.Accept(ctx, assignment)
			if s.reloading() {
				// the replacement session picks up from persisted state
				return
			}
		}
	}
}

// Accept applies an incoming assignment. Assignments for other devices are
// ignored. Otherwise the current assignment is replaced and persisted, then
// either a full refresh runs or the playlist is materialized.
func (s *Session) Accept(ctx context.Context, assignment model.Assignment) bool {
	code := s.Code()
	if !assignment.For(code) {
		s.mu.Lock()
		s.ignored++
		s.mu.Unlock()
		s.logger.Debug("ignoring assignment for another device", "device_id", assignment.DeviceID)
		return false
	}

	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()
	s.setCurrent(assignment)

	if err := s.state.Save(ctx, assignment); err != nil {
		s.logger.Error("playback state not persisted", "err", err)
	}

	if assignment.ScreenUpdate {
		s.PerformFullRefresh(ctx)
		return true
	}
	s.materialize(ctx, assignment)
	return true
}

// materialize shows the playlist right away, remote URLs standing in for
// uncached items, and re-renders once the cache holds what it could fetch.
func (s *Session) materialize(ctx context.Context, assignment model.Assignment) {
	s.driver.SetPlaylist(assignment.Playlist)
	res := s.cache.Materialize(ctx, assignment.Playlist)
	s.logger.Info("assignment applied",
		"items", len(assignment.Playlist.Items),
		"fetched", res.Fetched,
		"cached", res.Cached,
		"failed", res.Failed,
	)
	s.driver.Refresh()
}

func (s *Session) reloading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloaded
}

func (s *Session) setCurrent(assignment model.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &assignment
}

func (s *Session) Code() model.RegistrationCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

// Current returns the accepted assignment, nil before the first one.
func (s *Session) Current() *model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Frame returns what the slideshow is showing; false when idle.
func (s *Session) Frame() (slideshow.Frame, bool) {
	return s.driver.Current()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{
		Code:     s.code,
		Accepted: s.accepted,
		Ignored:  s.ignored,
	}
	if s.current != nil {
		cp := *s.current
		st.Assignment = &cp
	}
	if s.channel != nil {
		st.Connected = s.channel.Connected()
	}
	s.mu.RUnlock()
	st.State = s.driver.State()
	st.Handles = s.cache.Handles()
	return st
}
