package webhost

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/pkg/ports"
)

//go:embed shell.html
var shellPage []byte

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 4 << 20
	clientQueueLen = 256
)

type serverState struct {
	srv      *http.Server
	listener net.Listener
	url      string
}

func (h *Host) setupRoutes() {
	h.router.HandleFunc("/", h.handleShell).Methods("GET")
	h.router.HandleFunc("/ws", h.handleWebsocket).Methods("GET")
	h.router.HandleFunc("/doc", h.handleDocument).Methods("GET")
	h.router.HandleFunc("/file", h.handleFile).Methods("GET")
	h.router.HandleFunc("/health", h.handleHealth).Methods("GET")
}

// Handler returns the HTTP handler serving the shell page and websocket
func (h *Host) Handler() http.Handler {
	return corsMiddleware(h.router)
}

// Start listens on addr:port, or a nearby free port when port is taken,
// and serves in the background. It returns the shell page URL.
func (h *Host) Start(addr string, port int) (string, error) {
	l, err := ports.Listen(addr, port)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(addr, fmt.Sprint(ports.Port(l.Addr()))))
	state := &serverState{
		srv: &http.Server{
			Handler:           h.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: l,
		url:      url,
	}

	h.mu.Lock()
	if h.server != nil {
		h.mu.Unlock()
		l.Close()
		return "", fmt.Errorf("already serving on %s", h.server.url)
	}
	h.server = state
	h.mu.Unlock()

	go func() {
		if err := state.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Printf("[webhost] server stopped: %v", err)
		}
	}()
	log.Printf("[webhost] serving on %s", url)
	return url, nil
}

// URL returns the shell page address, empty before Start
func (h *Host) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == nil {
		return ""
	}
	return h.server.url
}

// Shutdown stops the server and disconnects every browser
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	state := h.server
	h.server = nil
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if state == nil {
		return nil
	}
	return state.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Host) handleShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(shellPage)
}

func (h *Host) handleDocument(w http.ResponseWriter, r *http.Request) {
	uri, err := host.ParseURI(r.URL.Query().Get("uri"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, ok := h.content(uri)
	if !ok {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(text))
}

// handleFile serves files passed to OpenFile, and nothing else
func (h *Host) handleFile(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	path, ok := h.files[r.URL.Query().Get("id")]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (h *Host) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := map[string]interface{}{
		"status":  "healthy",
		"clients": len(h.clients),
		"panels":  len(h.panels),
		"tabs":    len(h.tabs),
		"theme":   h.theme,
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *Host) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[webhost] websocket upgrade: %v", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, clientQueueLen),
		done: make(chan struct{}),
	}

	// The snapshot is queued before the client joins broadcasts, under the
	// same lock, so no frame is lost or reordered.
	h.mu.Lock()
	for _, f := range h.snapshotLocked() {
		c.queue(f)
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// snapshotLocked describes everything a new browser must render
func (h *Host) snapshotLocked() []frame {
	frames := []frame{{Op: opTheme, Theme: string(h.theme)}}
	for _, p := range h.panels {
		frames = append(frames, p.createFrame())
	}
	for _, t := range h.tabs {
		frames = append(frames, frame{Op: opDocShow, URI: t.uri.String(), Editor: string(t.editor), Column: t.column})
	}
	return frames
}

// broadcast sends f to every connected browser. A browser that cannot keep
// up is disconnected.
func (h *Host) broadcast(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.queue(f) {
			log.Printf("[webhost] dropping slow browser client")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected browsers
func (h *Host) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Host) readPump(c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[webhost] websocket read: %v", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("[webhost] ignoring malformed frame: %v", err)
			continue
		}
		h.handleFrame(f)
	}
}

// handleFrame applies one browser event. Callbacks run on the reading
// goroutine without any host lock held.
func (h *Host) handleFrame(f frame) {
	switch f.Op {
	case opPanelMessage:
		if p := h.panel(f.ID); p != nil && len(f.Message) > 0 {
			p.messages.Fire([]byte(f.Message))
		}
	case opPanelClosed:
		if p := h.panel(f.ID); p != nil {
			p.Dispose()
		}
	case opPanelVisible:
		if p := h.panel(f.ID); p != nil && f.Visible != nil {
			p.setVisible(*f.Visible)
		}
	case opTabClosed:
		uri, err := host.ParseURI(f.URI)
		if err != nil {
			log.Printf("[webhost] tab.closed: %v", err)
			return
		}
		h.closeTabs(uri)
	case opPickResult:
		h.mu.Lock()
		result, ok := h.picks[f.ID]
		h.mu.Unlock()
		if ok {
			select {
			case result <- f.Path:
			default:
			}
		}
	case opTheme:
		switch theme := host.Theme(f.Theme); theme {
		case host.ThemeLight, host.ThemeDark, host.ThemeHighContrast:
			h.SetTheme(theme)
		}
	default:
		log.Printf("[webhost] unknown frame op %q", f.Op)
	}
}

// client is one connected browser
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// queue encodes f for the writer. It reports false when the queue is full.
func (c *client) queue(f frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("[webhost] encode %s frame: %v", f.Op, err)
		return true
	}
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
