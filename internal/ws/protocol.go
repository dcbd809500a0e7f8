package ws

import (
	"github.com/begna112/vast-monitor/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgEvent    MessageType = "event"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload carries the full machine state set, sent on connect
// and periodically so late or recovered clients resynchronize.
type SnapshotPayload struct {
	Machines []*session.State `json:"machines"`
}

// DeltaPayload carries the states that changed since the last flush.
type DeltaPayload struct {
	Updates []*session.State `json:"updates"`
}

// EventPayload wraps one lifecycle event.
type EventPayload struct {
	Event session.Event `json:"event"`
}
