package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// StateSource supplies the current machine states for snapshots.
type StateSource interface {
	States() []*session.State
}

// Broadcaster fans machine state updates and lifecycle events out to
// connected WebSocket clients. Deltas within the throttle window are
// coalesced into one message; a periodic full snapshot covers clients
// that missed deltas.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	source  StateSource

	throttle       time.Duration
	snapshotTicker *time.Ticker

	flushMu        sync.Mutex
	pendingUpdates []*session.State
	flushTimer     *time.Timer
}

func NewBroadcaster(source StateSource, throttle, snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		source:   source,
		throttle: throttle,
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	snapshot := WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Machines: b.source.States(),
		},
	}
	data, _ := json.Marshal(snapshot)

	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// BroadcastStates queues a state delta, coalescing bursts within the
// throttle window.
func (b *Broadcaster) BroadcastStates(states []*session.State) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingUpdates = append(b.pendingUpdates, states...)

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// BroadcastEvent sends a lifecycle event immediately; events are rare
// enough that throttling would only delay them.
func (b *Broadcaster) BroadcastEvent(ev session.Event) {
	b.broadcast(WSMessage{
		Type:    MsgEvent,
		Payload: EventPayload{Event: ev},
	})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := b.pendingUpdates
	b.pendingUpdates = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) == 0 {
		return
	}

	b.broadcast(WSMessage{
		Type:    MsgDelta,
		Payload: DeltaPayload{Updates: updates},
	})
}

func (b *Broadcaster) snapshotLoop() {
	for range b.snapshotTicker.C {
		b.broadcast(WSMessage{
			Type: MsgSnapshot,
			Payload: SnapshotPayload{
				Machines: b.source.States(),
			},
		})
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
