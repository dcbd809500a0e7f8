package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
	"github.com/gorilla/websocket"
)

// staticSource serves a fixed state set.
type staticSource struct {
	states []*session.State
}

func (s *staticSource) States() []*session.State { return s.states }

func newTestBroadcaster(source StateSource) *Broadcaster {
	return NewBroadcaster(source, 10*time.Millisecond, time.Hour)
}

func dialTestClient(t *testing.T, b *Broadcaster) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.AddClient(conn)
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func TestClientReceivesSnapshotOnConnect(t *testing.T) {
	source := &staticSource{states: []*session.State{
		{MachineID: 100, Status: session.Active, SessionID: "m100-0001"},
	}}
	b := newTestBroadcaster(source)
	conn, cleanup := dialTestClient(t, b)
	defer cleanup()

	msg := readMessage(t, conn)
	if msg.Type != MsgSnapshot {
		t.Fatalf("first message type = %s, want snapshot", msg.Type)
	}

	payload, _ := json.Marshal(msg.Payload)
	var snap SnapshotPayload
	if err := json.Unmarshal(payload, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Machines) != 1 || snap.Machines[0].MachineID != 100 {
		t.Errorf("snapshot payload: %+v", snap.Machines)
	}
}

func TestBroadcastEvent(t *testing.T) {
	b := newTestBroadcaster(&staticSource{})
	conn, cleanup := dialTestClient(t, b)
	defer cleanup()

	readMessage(t, conn) // connect snapshot

	b.BroadcastEvent(session.Event{
		Kind:      session.EventRentalStart,
		MachineID: 100,
		Time:      time.Now(),
	})

	msg := readMessage(t, conn)
	if msg.Type != MsgEvent {
		t.Fatalf("message type = %s, want event", msg.Type)
	}
}

func TestBroadcastStatesCoalesced(t *testing.T) {
	b := newTestBroadcaster(&staticSource{})
	conn, cleanup := dialTestClient(t, b)
	defer cleanup()

	readMessage(t, conn) // connect snapshot

	// Two updates inside the throttle window arrive as one delta.
	b.BroadcastStates([]*session.State{{MachineID: 100}})
	b.BroadcastStates([]*session.State{{MachineID: 200}})

	msg := readMessage(t, conn)
	if msg.Type != MsgDelta {
		t.Fatalf("message type = %s, want delta", msg.Type)
	}

	payload, _ := json.Marshal(msg.Payload)
	var delta DeltaPayload
	if err := json.Unmarshal(payload, &delta); err != nil {
		t.Fatal(err)
	}
	if len(delta.Updates) != 2 {
		t.Errorf("delta carries %d updates, want 2 coalesced", len(delta.Updates))
	}
}

func TestClientCount(t *testing.T) {
	b := newTestBroadcaster(&staticSource{})
	if b.ClientCount() != 0 {
		t.Errorf("initial ClientCount = %d", b.ClientCount())
	}

	_, cleanup := dialTestClient(t, b)
	defer cleanup()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.ClientCount() != 1 {
		t.Errorf("ClientCount after connect = %d", b.ClientCount())
	}
}
