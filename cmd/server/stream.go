package main

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coinwatch/internal/aggregate"
	"coinwatch/internal/engine"
	"coinwatch/internal/notify"
	"coinwatch/internal/viewstate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// streamMessage is one frame pushed to a dashboard. The first frame on every
// connection is "hello" and carries both the board and the view.
type streamMessage struct {
	Type   string           `json:"type"`
	Seq    uint64           `json:"seq,omitempty"`
	ConnID string           `json:"conn_id,omitempty"`
	Board  *aggregate.Board `json:"board,omitempty"`
	View   *viewstate.State `json:"view,omitempty"`
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan streamMessage

	// mu orders the hello frame before any event frame.
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamClient) close() { c.closeOnce.Do(func() { close(c.done) }) }

// streamHub fans engine events out to websocket clients.
type streamHub struct {
	eng      *engine.Engine
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*streamClient
}

func newStreamHub(eng *engine.Engine, logger *slog.Logger, allowedOrigin string) *streamHub {
	return &streamHub{
		eng:    eng,
		logger: logger.With("component", "stream"),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return originAllowed(allowedOrigin, r) },
		},
		clients: make(map[string]*streamClient),
	}
}

func (h *streamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &streamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan streamMessage, sendBuffer),
		done: make(chan struct{}),
	}
	logger := h.logger.With("conn", c.id)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	logger.Info("stream connected", "remote", r.RemoteAddr)

	c.mu.Lock()
	cancel := h.eng.Subscribe(func(ev notify.Event) { h.deliver(c, logger, ev) })
	board, view := h.eng.Board(), h.eng.View()
	c.send <- streamMessage{Type: "hello", ConnID: c.id, Board: &board, View: &view}
	c.mu.Unlock()

	go h.readLoop(c, logger)
	h.writeLoop(c)

	cancel()
	c.close()
	_ = conn.Close()

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	logger.Info("stream disconnected")
}

// deliver runs on the publishing goroutine and must not block.
// A client whose buffer is full is disconnected.
func (h *streamHub) deliver(c *streamClient, logger *slog.Logger, ev notify.Event) {
	msg := streamMessage{Type: string(ev.Topic), Seq: ev.Seq}
	switch ev.Topic {
	case notify.TopicPrices:
		board := h.eng.Board()
		msg.Board = &board
	case notify.TopicView:
		st, ok := ev.Data.(viewstate.State)
		if !ok {
			return
		}
		msg.View = &st
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		logger.Warn("stream client too slow; disconnecting", "seq", ev.Seq)
		c.close()
	}
}

func (h *streamHub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// readLoop only services control frames; clients never send data.
func (h *streamHub) readLoop(c *streamClient, logger *slog.Logger) {
	defer c.close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("stream read", "err", err)
			}
			return
		}
	}
}

// CloseAll asks every connected client to disconnect.
func (h *streamHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.close()
	}
}

func (h *streamHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
