// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mixdeck/internal/notify"
)

func dial(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitForClients(t *testing.T, wst *WebSocketTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for wst.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", wst.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0")
	defer wst.Close()
	wst.OnConnect(func() any { return Status{Type: "status", BPM: 120, Key: "C"} })

	conn := dial(t, wst)

	var status Status
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Type != "status" || status.BPM != 120 {
		t.Errorf("status = %+v", status)
	}

	waitForClients(t, wst, 1)
	if err := wst.Send(NewMessage(notify.BPMChanged{BPM: 99})); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got struct {
		Type  string `json:"type"`
		Event struct {
			BPM int `json:"bpm"`
		} `json:"event"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if got.Type != "bpm_changed" || got.Event.BPM != 99 {
		t.Errorf("broadcast = %+v", got)
	}
}

type fakeController struct {
	calls []string
}

func (f *fakeController) LoadFile(path string, id int) error {
	f.calls = append(f.calls, "load")
	if path == "" {
		return errors.New("no path")
	}
	return nil
}
func (f *fakeController) RemoveTrack(id int) { f.calls = append(f.calls, "remove") }
func (f *fakeController) Play()              { f.calls = append(f.calls, "play") }
func (f *fakeController) Stop()              { f.calls = append(f.calls, "stop") }
func (f *fakeController) SetBPM(bpm int) error {
	f.calls = append(f.calls, "bpm")
	if bpm <= 0 {
		return errors.New("bpm must be positive")
	}
	return nil
}
func (f *fakeController) SetKey(key string) error {
	f.calls = append(f.calls, "key")
	return nil
}

func TestWebSocketCommands(t *testing.T) {
	ctrl := &fakeController{}
	wst := NewWebSocketTransport("127.0.0.1:0")
	defer wst.Close()
	wst.OnCommand(CommandHandlerFor(ctrl))

	conn := dial(t, wst)

	tests := []struct {
		cmd Command
		ok  bool
	}{
		{Command{Action: "play"}, true},
		{Command{Action: "bpm", BPM: 0}, false},
		{Command{Action: "bpm", BPM: 128}, true},
		{Command{Action: "dance"}, false},
	}

	for _, tt := range tests {
		if err := conn.WriteJSON(tt.cmd); err != nil {
			t.Fatalf("write %s: %v", tt.cmd.Action, err)
		}
		var reply Reply
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read reply to %s: %v", tt.cmd.Action, err)
		}
		if reply.Type != "reply" || reply.Action != tt.cmd.Action || reply.OK != tt.ok {
			t.Errorf("reply to %s = %+v, want ok=%v", tt.cmd.Action, reply, tt.ok)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	var reply Reply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply to garbage: %v", err)
	}
	if reply.OK || !strings.Contains(reply.Error, "malformed") {
		t.Errorf("reply to garbage = %+v", reply)
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0")
	defer wst.Close()

	conn := dial(t, wst)
	waitForClients(t, wst, 1)

	conn.Close()
	waitForClients(t, wst, 0)
}

func TestWebSocketStartAndClose(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0")
	if err := wst.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strings.HasSuffix(wst.Addr(), ":0") {
		t.Errorf("Addr() = %s, want a bound port", wst.Addr())
	}
	if err := wst.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWebSocketOriginPolicy(t *testing.T) {
	ctrl := &fakeController{}
	wst := NewWebSocketTransport("127.0.0.1:0")
	defer wst.Close()
	wst.OnCommand(CommandHandlerFor(ctrl))
	wst.AllowOrigins("http://localhost:3000", "https://deck.example/")

	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"no origin", "", true},
		{"same origin", srv.URL, true},
		{"allowlisted", "http://localhost:3000", true},
		{"allowlisted with trailing slash", "https://deck.example", true},
		{"foreign page", "https://evil.example", false},
		{"allowlisted host on another port", "http://localhost:3001", false},
		{"allowlisted host with another scheme", "https://localhost:3000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if !tt.ok {
				if err == nil {
					conn.Close()
					t.Fatalf("origin %q was accepted", tt.origin)
				}
				if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Fatalf("origin %q: err = %v, want a 403 handshake failure", tt.origin, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("origin %q rejected: %v", tt.origin, err)
			}
			conn.Close()
		})
	}

	if len(ctrl.calls) != 0 {
		t.Errorf("controller calls = %v, want none", ctrl.calls)
	}
}

func TestWebSocketForeignOriginCannotLoad(t *testing.T) {
	ctrl := &fakeController{}
	wst := NewWebSocketTransport("127.0.0.1:0")
	defer wst.Close()
	wst.OnCommand(CommandHandlerFor(ctrl))

	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": {"https://evil.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.WriteJSON(Command{Action: "load", Path: "/etc/passwd", TrackID: 1})
		conn.Close()
		t.Fatal("cross-site handshake succeeded")
	}
	if wst.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", wst.ClientCount())
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("controller calls = %v, want none", ctrl.calls)
	}
}
