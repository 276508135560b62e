// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	applog "mixdeck/internal/log"
)

// CommandHandler executes a remote command. It is called on the client's
// read goroutine.
type CommandHandler func(Command) error

// WebSocketTransport implements the Transport interface for WebSocket connections
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]*sync.Mutex // per-connection write lock
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	listener  net.Listener

	onCommand      CommandHandler
	onConnect      func() any
	allowedOrigins []string

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketTransport creates a new WebSocketTransport instance. The
// broadcaster runs immediately; call Start to listen on addr, or mount
// Handler on an existing server.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}
	wst.upgrader.CheckOrigin = wst.checkOrigin

	go wst.handleBroadcasts()
	return wst
}

// OnCommand installs the handler for client commands. Without one, client
// messages are ignored.
func (wst *WebSocketTransport) OnCommand(h CommandHandler) { wst.onCommand = h }

// OnConnect installs a function whose result is sent to each new client
// before any broadcast, typically the engine status.
func (wst *WebSocketTransport) OnConnect(f func() any) { wst.onConnect = f }

// AllowOrigins admits browser pages served from other origins, given as
// scheme://host[:port]. Must be called before the first client connects.
func (wst *WebSocketTransport) AllowOrigins(origins ...string) {
	wst.allowedOrigins = append(wst.allowedOrigins, origins...)
}

// checkOrigin accepts clients without an Origin header, pages served from
// the endpoint's own host, and allowlisted origins. Any other page could
// otherwise drive the engine from the user's browser.
func (wst *WebSocketTransport) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if slices.ContainsFunc(wst.allowedOrigins, func(o string) bool {
		return strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
	}) {
		return true
	}
	applog.Warnf("WebSocketTransport: Rejected connection from origin %s", origin)
	return false
}

// Handler serves the /ws endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.listener = ln
	wst.server = &http.Server{Handler: wst.Handler()}

	go func() {
		applog.Infof("WebSocketTransport: Starting WebSocket server on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address once Start has succeeded.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// ClientCount is the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	writeMu := &sync.Mutex{}
	if wst.onConnect != nil {
		if err := conn.WriteJSON(wst.onConnect()); err != nil {
			conn.Close()
			return
		}
	}

	// Register client
	wst.clientsMu.Lock()
	wst.clients[conn] = writeMu
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	go wst.readLoop(conn, writeMu)
}

// readLoop executes commands until the client goes away.
func (wst *WebSocketTransport) readLoop(conn *websocket.Conn, writeMu *sync.Mutex) {
	defer wst.drop(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if wst.onCommand == nil {
			continue
		}

		var cmd Command
		reply := Reply{Type: "reply", OK: true}
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply.OK, reply.Error = false, "malformed command: "+err.Error()
		} else {
			reply.Action = cmd.Action
			if err := wst.onCommand(cmd); err != nil {
				reply.OK, reply.Error = false, err.Error()
			}
		}

		writeMu.Lock()
		err = conn.WriteJSON(reply)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client, writeMu := range wst.clients {
				writeMu.Lock()
				err := client.WriteJSON(data)
				writeMu.Unlock()
				if err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send broadcasts data to all connected WebSocket clients
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
		// Message queued for broadcast
	default:
		// Channel full, drop message
		applog.Debugf("WebSocketTransport: broadcast queue full, dropping %T", data)
	}
	return nil
}

// Close shuts down the WebSocket server
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Debugf("WebSocketTransport: Closing server")
		close(wst.done)

		// Close all client connections
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]*sync.Mutex)
		wst.clientsMu.Unlock()

		// Close server
		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
