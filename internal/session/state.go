// Package session holds the per-machine rental session state tracked
// across poll cycles, the lifecycle event taxonomy, and the persisted
// snapshot store that lets the tracker survive restarts.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// RentalStatus is the rental lifecycle position of a machine.
type RentalStatus int

const (
	Absent RentalStatus = iota // no rental on the machine
	Active                     // GPUs and storage allocated
	Paused                     // GPUs released, storage retained
	Invalid                    // machine unknown to the provider; tracking suppressed
)

var statusNames = map[RentalStatus]string{
	Absent:  "absent",
	Active:  "active",
	Paused:  "paused",
	Invalid: "invalid",
}

var statusFromName = map[string]RentalStatus{
	"absent":  Absent,
	"active":  Active,
	"paused":  Paused,
	"invalid": Invalid,
}

func (s RentalStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s RentalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *RentalStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// State is the persisted record for one machine. It is mutated only by
// the tracker; one record exists per machine ID at any time.
//
// An error condition is orthogonal to the rental status: a machine can
// error while a rental is active or while idle, so errors live in
// ErrorActive/LastError alongside Status rather than replacing it.
type State struct {
	MachineID int          `json:"machine_id"`
	Status    RentalStatus `json:"status"`

	// SessionID is stable across pause/resume for the same rental,
	// formatted m<machine>-<seq>. Empty when Status is Absent.
	SessionID string `json:"session_id,omitempty"`
	// NextSeq numbers the next session on this machine.
	NextSeq int `json:"next_session_seq"`

	// Hardware captured at rental start so formatters never re-query.
	GPUCount  int     `json:"gpu_count,omitempty"`
	GPUName   string  `json:"gpu_name,omitempty"`
	GPURate   float64 `json:"gpu_rate,omitempty"`
	StorageGB float64 `json:"storage_gb,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ContractEnd *time.Time `json:"contract_end,omitempty"`

	// RentalsSeen counts rental_start transitions since first tracking.
	RentalsSeen int `json:"rentals_seen"`

	// Seeded marks a session that predates this process; its start was
	// reported via the startup summary, not a rental_start event.
	Seeded bool `json:"seeded,omitempty"`

	ErrorActive bool   `json:"error_active,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	// LastErrorNotifiedAt throttles repeat error notifications for a
	// condition that persists across many cycles.
	LastErrorNotifiedAt *time.Time `json:"last_error_notified_at,omitempty"`

	// Machine display context carried for formatters and the status API.
	NumGPUs     int    `json:"num_gpus,omitempty"`
	Occupancy   string `json:"gpu_occupancy,omitempty"`
	Geolocation string `json:"geolocation,omitempty"`
}

// NewState returns the initial record for a machine with no history.
func NewState(machineID int) *State {
	return &State{MachineID: machineID, Status: Absent, NextSeq: 1}
}

// NextSessionID allocates the next session identifier for this machine.
func (s *State) NextSessionID() string {
	id := fmt.Sprintf("m%d-%04d", s.MachineID, s.NextSeq)
	s.NextSeq++
	return id
}

// HasRental reports whether a rental occupies this machine, running or
// paused.
func (s *State) HasRental() bool {
	return s.Status == Active || s.Status == Paused
}

// DisplayStatus is the combined lifecycle+error view used by formatters
// and the status API ("errored" wins over the rental status).
func (s *State) DisplayStatus() string {
	if s.ErrorActive {
		return "errored"
	}
	return s.Status.String()
}

// Clone returns a deep copy so callers can mutate independently of the
// tracker's record.
func (s *State) Clone() *State {
	c := *s
	c.StartedAt = cloneTime(s.StartedAt)
	c.PausedAt = cloneTime(s.PausedAt)
	c.ContractEnd = cloneTime(s.ContractEnd)
	c.LastErrorNotifiedAt = cloneTime(s.LastErrorNotifiedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
