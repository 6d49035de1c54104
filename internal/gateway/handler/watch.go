package handler

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nexflow/internal/graph"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchOutbound struct {
	Op         string   `json:"op"`
	NodeID     string   `json:"nodeId,omitempty"`
	EdgeID     string   `json:"edgeId,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Positional bool     `json:"positional,omitempty"`
}

// WatchHub fans graph mutation events out to websocket subscribers so the UI
// collaborator can mirror the canvas live.
type WatchHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan watchOutbound
}

func NewWatchHub(store *graph.Store) *WatchHub {
	h := &WatchHub{conns: make(map[*websocket.Conn]chan watchOutbound)}
	store.Subscribe(h.broadcast)
	return h
}

func (h *WatchHub) broadcast(ev graph.Event) {
	msg := watchOutbound{
		Op:         string(ev.Op),
		NodeID:     ev.NodeID,
		EdgeID:     ev.Edge.ID,
		Fields:     ev.Fields,
		Positional: ev.Positional,
	}
	h.mu.Lock()
	for _, ch := range h.conns {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; drop rather than stall the mutation path.
		}
	}
	h.mu.Unlock()
}

// Handle upgrades the request and streams events until the peer goes away.
func (h *WatchHub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan watchOutbound, 64)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		log.Printf("watch ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// Reader goroutine only services control frames and detects close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
