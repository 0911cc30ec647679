package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeServer speaks just enough Engine.IO/Socket.IO to drive the client.
type fakeServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	pushes   []string

	mu        sync.Mutex
	announced []string
	pongs     int
	queries   []string
	conns     int
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Path+"?"+r.URL.RawQuery)
	s.conns++
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	write := func(frame string) bool {
		return conn.WriteMessage(websocket.TextMessage, []byte(frame)) == nil
	}
	read := func() (string, bool) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return "", false
		}
		return string(msg), true
	}

	if !write(`0{"sid":"eio-1","upgrades":[],"pingInterval":5000,"pingTimeout":5000,"maxPayload":1000000}`) {
		return
	}
	if frame, ok := read(); !ok || frame != "40" {
		return
	}
	if !write(`40{"sid":"sock-1"}`) {
		return
	}
	frame, ok := read()
	if !ok {
		return
	}
	pkt, err := DecodePacket([]byte(frame))
	if err != nil || pkt.Socket != socketEvent {
		return
	}
	var args []json.RawMessage
	_ = json.Unmarshal(pkt.Data, &args)
	var payload struct {
		Text string `json:"text"`
	}
	if len(args) == 2 {
		_ = json.Unmarshal(args[1], &payload)
	}
	s.mu.Lock()
	s.announced = append(s.announced, payload.Text)
	s.mu.Unlock()
	if !write(`43` + itoa(pkt.AckID) + `[{"status":"registered"}]`) {
		return
	}

	if !write("2") {
		return
	}
	if frame, ok := read(); ok && frame == "3" {
		s.mu.Lock()
		s.pongs++
		s.mu.Unlock()
	}

	for _, push := range s.pushes {
		if !write(push) {
			return
		}
	}
	// keep the session open until the client leaves
	for {
		if _, ok := read(); !ok {
			return
		}
	}
}

func itoa(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func screenUpdatedFrame(t *testing.T, assignment string) string {
	t.Helper()
	frame, err := EncodeEvent(-1, EventScreenUpdated, assignment)
	if err != nil {
		t.Fatalf("encode push: %v", err)
	}
	return string(frame)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientAnnouncesCodeAndDeliversPushes(t *testing.T) {
	server := &fakeServer{
		t: t,
		pushes: []string{
			`42["screenUpdated","not-json"]`,
			`42["somethingElse",{}]`,
			screenUpdatedFrame(t, `{"deviceId":"5-1234-5678","screenUpdate":false,"playlist":{"items":[{"media":{"url":"https://cdn/x/a.png"}}]}}`),
			screenUpdatedFrame(t, `{"deviceId":"9-9999-9999","screenUpdate":false,"playlist":{"items":[]}}`),
		},
	}
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "5-1234-5678", Options{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Run(ctx, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	var got []Event
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("received %d events, want 2", len(got))
		}
	}
	if got[0].Assignment.DeviceID != "5-1234-5678" || got[0].Assignment.Playlist.Items[0].Media.URL != "https://cdn/x/a.png" {
		t.Fatalf("first event = %+v", got[0].Assignment)
	}
	// filtering by device happens in the player session, not the transport
	if got[1].Assignment.DeviceID != "9-9999-9999" {
		t.Fatalf("second event = %+v", got[1].Assignment)
	}
	if !client.Connected() {
		t.Fatalf("Connected() = false during session")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.announced) == 0 || server.announced[0] != "5-1234-5678" {
		t.Fatalf("announced = %v, want registration code", server.announced)
	}
	if server.pongs != 1 {
		t.Fatalf("pongs = %d, want 1", server.pongs)
	}
	if !strings.HasPrefix(server.queries[0], "/socket.io/?") || !strings.Contains(server.queries[0], "EIO=4") || !strings.Contains(server.queries[0], "transport=websocket") {
		t.Fatalf("query = %q", server.queries[0])
	}
}

func TestClientReconnectsAndReannounces(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if n == 1 {
			// drop the first connection before the handshake completes
			return
		}
		(&fakeServer{t: t}).serveUpgraded(conn)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "1-2345-6789", Options{MaxBackoff: 50 * time.Millisecond}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx, func(Event) {})

	deadline := time.Now().Add(5 * time.Second)
	for client.Sessions() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if client.Sessions() < 1 {
		t.Fatalf("Sessions() = %d, want at least 1 after reconnect", client.Sessions())
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts < 2 {
		t.Fatalf("attempts = %d, want at least 2", attempts)
	}
}

func (s *fakeServer) serveUpgraded(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"eio-2","pingInterval":300,"pingTimeout":300}`))
	if _, msg, err := conn.ReadMessage(); err != nil || string(msg) != "40" {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sock-2"}`))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{server: "http://localhost:3000", want: "ws://localhost:3000/socket.io/?EIO=4&transport=websocket"},
		{server: "https://signage.example.com/", want: "wss://signage.example.com/socket.io/?EIO=4&transport=websocket"},
		{server: "https://signage.example.com/realtime", want: "wss://signage.example.com/realtime/socket.io/?EIO=4&transport=websocket"},
	}
	for _, tt := range tests {
		got, err := NewClient(tt.server, "1-0000-0000", Options{}, discardLogger()).endpoint()
		if err != nil {
			t.Fatalf("endpoint(%q) error: %v", tt.server, err)
		}
		if got != tt.want {
			t.Fatalf("endpoint(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
	if _, err := NewClient("ftp://x", "1-0000-0000", Options{}, discardLogger()).endpoint(); err == nil {
		t.Fatal("endpoint(ftp) error = nil, want error")
	}
}
