package session

import "time"

// EventKind classifies lifecycle events emitted by the tracker.
type EventKind string

const (
	EventSystem       EventKind = "system"
	EventStartup      EventKind = "startup"
	EventRentalStart  EventKind = "rental_start"
	EventRentalEnd    EventKind = "rental_end"
	EventRentalPause  EventKind = "rental_pause"
	EventRentalResume EventKind = "rental_resume"
	EventError        EventKind = "error"
	EventRecovery     EventKind = "recovery"
)

// ValidEventKinds enumerates every kind a notification target may
// subscribe to.
var ValidEventKinds = map[EventKind]bool{
	EventSystem:       true,
	EventStartup:      true,
	EventRentalStart:  true,
	EventRentalEnd:    true,
	EventRentalPause:  true,
	EventRentalResume: true,
	EventError:        true,
	EventRecovery:     true,
}

// SessionInfo is the rental payload carried on rental_* events. It is a
// self-contained snapshot: formatters render from it without touching
// tracker state.
type SessionInfo struct {
	ID          string     `json:"id"`
	GPUCount    int        `json:"gpu_count"`
	GPUName     string     `json:"gpu_name,omitempty"`
	GPURate     float64    `json:"gpu_rate"`
	StorageGB   float64    `json:"storage_gb,omitempty"`
	RentalType  string     `json:"rental_type,omitempty"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ContractEnd *time.Time `json:"contract_end,omitempty"`
	// Duration is filled on rental_end.
	Duration time.Duration `json:"duration,omitempty"`
	// Seeded sessions predate this process.
	Seeded bool `json:"seeded,omitempty"`
}

// MachineInfo is the machine overview payload attached to events.
type MachineInfo struct {
	ID          int    `json:"id"`
	GPUName     string `json:"gpu_name,omitempty"`
	NumGPUs     int    `json:"num_gpus"`
	GPUsUsed    int    `json:"gpus_used"`
	Occupancy   string `json:"gpu_occupancy,omitempty"`
	Geolocation string `json:"geolocation,omitempty"`
}

// StartupMachine summarizes one machine in the startup event: its
// overview plus a placeholder per ongoing session, split one-per-session
// so later diffing can track each independently.
type StartupMachine struct {
	Machine  MachineInfo   `json:"machine"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
	Running  int           `json:"running"`
	Stored   int           `json:"stored"`
}

// SystemInfo carries free-form system notifications (monitor started,
// provider unreachable, shutdown).
type SystemInfo struct {
	Title string   `json:"title"`
	Lines []string `json:"lines,omitempty"`
}

// Event is an immutable lifecycle event. Events are created only by the
// tracker (or the startup seeding routine) and are never persisted;
// only their effect on State is.
type Event struct {
	Kind      EventKind `json:"kind"`
	MachineID int       `json:"machine_id,omitempty"`
	Time      time.Time `json:"time"`

	Session *SessionInfo     `json:"session,omitempty"`
	Machine *MachineInfo     `json:"machine,omitempty"`
	Startup []StartupMachine `json:"startup,omitempty"`
	System  *SystemInfo      `json:"system,omitempty"`
	// Error is the provider-reported condition on error events.
	Error string `json:"error,omitempty"`
}
