// Package channel keeps the live Socket.IO connection to the control server.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signage-player/webplayer/internal/model"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
	initialBackoff      = time.Second
)

type Options struct {
	Path       string
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

// Client connects, announces the registration code and delivers pushes.
type Client struct {
	serverURL  string
	path       string
	code       model.RegistrationCode
	maxBackoff time.Duration
	dialer     *websocket.Dialer
	logger     *slog.Logger

	mu        sync.RWMutex
	connected bool
	sessions  int
	nextAckID int
}

func NewClient(serverURL string, code model.RegistrationCode, opts Options, logger *slog.Logger) *Client {
	if opts.Path == "" {
		opts.Path = "/socket.io/"
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		serverURL:  strings.TrimSuffix(strings.TrimSpace(serverURL), "/"),
		path:       opts.Path,
		code:       code,
		maxBackoff: opts.MaxBackoff,
		dialer:     opts.Dialer,
		logger:     logger,
	}
}

// Connected reports whether a Socket.IO session is currently established.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Sessions counts successfully established sessions since start.
func (c *Client) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions
}

// Run keeps a session open until ctx is done, reconnecting with backoff.
// deliver is called from the reader goroutine, one event at a time.
func (c *Client) Run(ctx context.Context, deliver func(Event)) {
	backoff := min(initialBackoff, c.maxBackoff)
	for {
		if ctx.Err() != nil {
			return
		}
		established, err := c.runSession(ctx, deliver)
		c.setConnected(false)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("live channel disconnected", "err", err)
		}
		if established {
			backoff = min(initialBackoff, c.maxBackoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < c.maxBackoff {
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}
	}
}

func (c *Client) runSession(ctx context.Context, deliver func(Event)) (bool, error) {
	wsURL, err := c.endpoint()
	if err != nil {
		return false, err
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(defaultPingInterval)); err != nil {
		return false, err
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false, err
	}
	pkt, err := DecodePacket(msg)
	if err != nil {
		return false, err
	}
	hs, err := DecodeHandshake(pkt)
	if err != nil {
		return false, err
	}
	window := readWindow(hs)

	if err := conn.WriteMessage(websocket.TextMessage, EncodeConnect()); err != nil {
		return false, err
	}
	if err := c.awaitConnect(conn, window); err != nil {
		return false, err
	}

	c.setConnected(true)
	c.logger.Info("live channel connected", "sid", hs.SID, "code", c.code)

	ackID := c.takeAckID()
	announce, err := EncodeEvent(ackID, EventRegister, map[string]string{"text": string(c.code)})
	if err != nil {
		return true, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, announce); err != nil {
		return true, err
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return true, err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		pkt, err := DecodePacket(msg)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "err", err)
			continue
		}

		switch pkt.Engine {
		case enginePing:
			if err := conn.WriteMessage(websocket.TextMessage, EncodePong()); err != nil {
				return true, err
			}
			continue
		case engineClose:
			return true, errors.New("server closed engine session")
		case engineMessage:
		default:
			continue
		}

		switch pkt.Socket {
		case socketDisconnect:
			return true, errors.New("server disconnected socket")
		case socketEvent, socketAck:
		default:
			continue
		}

		ev, err := DecodeEvent(pkt)
		if err != nil {
			c.logger.Warn("dropping malformed push", "err", err)
			continue
		}
		switch ev.Kind {
		case KindAck:
			if ev.AckID == ackID {
				c.logger.Info("registration acknowledged", "code", c.code, "response", string(ev.Raw))
			}
		case KindScreenUpdated:
			deliver(ev)
		default:
			c.logger.Debug("ignoring event", "event", ev.Name)
		}
	}
}

func (c *Client) awaitConnect(conn *websocket.Conn, window time.Duration) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		pkt, err := DecodePacket(msg)
		if err != nil {
			return err
		}
		switch {
		case pkt.Engine == enginePing:
			if err := conn.WriteMessage(websocket.TextMessage, EncodePong()); err != nil {
				return err
			}
		case pkt.Engine == engineMessage && pkt.Socket == socketConnect:
			return nil
		case pkt.Engine == engineMessage && pkt.Socket == socketConnectError:
			return fmt.Errorf("%w: %s", ErrHandshake, string(pkt.Data))
		case pkt.Engine == engineClose:
			return fmt.Errorf("%w: closed during connect", ErrHandshake)
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v && !c.connected {
		c.sessions++
	}
	c.connected = v
}

func (c *Client) takeAckID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextAckID
	c.nextAckID++
	return id
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readWindow(hs Handshake) time.Duration {
	interval := time.Duration(hs.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(hs.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return interval + timeout
}
