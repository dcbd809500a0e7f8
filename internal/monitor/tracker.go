package monitor

import (
	"log"
	"strings"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
	"github.com/begna112/vast-monitor/internal/vast"
)

// Tracker is the session lifecycle diff engine. Given the previous
// persisted state and the current snapshot for one machine it computes
// the lifecycle events and the next state to persist.
//
// Evaluation is per machine with no cross-machine dependency, so the
// monitor may run Evaluate calls for distinct machines concurrently.
type Tracker struct {
	// ErrorPingInterval throttles repeat notifications for an error
	// condition that persists across cycles. Zero disables re-pings.
	ErrorPingInterval time.Duration
}

// Evaluate computes lifecycle events for one machine. prev is mutated
// never; the returned state is a fresh record. Evaluating the same
// (prev, cur) pair twice yields no events the second time.
func (t *Tracker) Evaluate(prev *session.State, cur *vast.Machine, now time.Time) ([]session.Event, *session.State) {
	if prev.Status == session.Invalid {
		return nil, prev
	}

	next := prev.Clone()

	if err := cur.Validate(); err != nil {
		// A malformed snapshot is a local problem for this machine
		// only; rental diffing is skipped until it clears.
		return t.errorChannel(prev, next, "malformed snapshot from provider", false, now), next
	}

	next.NumGPUs = cur.NumGPUs
	next.Occupancy = cur.GPUOccupancy
	next.Geolocation = cur.Geolocation
	if cur.GPUName != "" {
		next.GPUName = cur.GPUName
	}

	var events []session.Event
	endedThisCycle := false

	gpus := cur.GPUsAllocated()
	storage := cur.StorageAllocated()

	switch prev.Status {
	case session.Absent:
		if gpus {
			events = append(events, t.startRental(next, cur, now))
		}

	case session.Active:
		switch {
		case !gpus && storage:
			events = append(events, t.pauseRental(next, cur, now))
		case !gpus && !storage:
			events = append(events, t.endRental(next, cur, now))
			endedThisCycle = true
		}

	case session.Paused:
		switch {
		case gpus:
			events = append(events, t.resumeRental(next, cur, now))
		case !storage:
			// Storage released while paused: the stored session ended.
			events = append(events, t.endRental(next, cur, now))
			endedThisCycle = true
		}
	}

	events = append(events, t.errorChannel(prev, next, cur.ErrorText(), endedThisCycle, now)...)

	mi := machineInfo(cur)
	for i := range events {
		if events[i].Machine == nil {
			events[i].Machine = &mi
		}
	}
	return events, next
}

// EvaluateMissing handles a configured machine absent from a successful
// provider response: the ID never existed, was deleted, or is invalid.
// The machine is marked invalid and all further evaluation for it is
// suppressed rather than treating repeated absence as rental_end churn.
func (t *Tracker) EvaluateMissing(prev *session.State) *session.State {
	if prev.Status == session.Invalid {
		return prev
	}
	log.Printf("Machine %d not present in provider response, marking invalid", prev.MachineID)
	next := prev.Clone()
	next.Status = session.Invalid
	return next
}

func (t *Tracker) startRental(next *session.State, cur *vast.Machine, now time.Time) session.Event {
	next.Status = session.Active
	next.SessionID = next.NextSessionID()
	next.GPUCount = cur.OccupiedCount()
	next.GPURate = cur.GPURate()
	next.StorageGB = cur.AllocDiskSpace
	next.StartedAt = &now
	next.PausedAt = nil
	next.ContractEnd = cur.ContractEnd()
	next.RentalsSeen++
	next.Seeded = false

	log.Printf("New rental: machine %d, session %s, x%d %s @ $%.4f/gpu/hr",
		next.MachineID, next.SessionID, next.GPUCount, next.GPUName, next.GPURate)
	return session.Event{
		Kind:      session.EventRentalStart,
		MachineID: next.MachineID,
		Time:      now,
		Session:   sessionInfo(next, cur.RentalType()),
	}
}

func (t *Tracker) pauseRental(next *session.State, cur *vast.Machine, now time.Time) session.Event {
	next.Status = session.Paused
	next.PausedAt = &now
	if cur.AllocDiskSpace > 0 {
		next.StorageGB = cur.AllocDiskSpace
	}

	log.Printf("Session paused: machine %d, session %s, %d GPUs released",
		next.MachineID, next.SessionID, next.GPUCount)
	return session.Event{
		Kind:      session.EventRentalPause,
		MachineID: next.MachineID,
		Time:      now,
		Session:   sessionInfo(next, cur.RentalType()),
	}
}

func (t *Tracker) resumeRental(next *session.State, cur *vast.Machine, now time.Time) session.Event {
	next.Status = session.Active
	next.PausedAt = nil
	next.GPUCount = cur.OccupiedCount()
	next.GPURate = cur.GPURate()

	log.Printf("Session resumed: machine %d, session %s, x%d GPUs re-allocated",
		next.MachineID, next.SessionID, next.GPUCount)
	return session.Event{
		Kind:      session.EventRentalResume,
		MachineID: next.MachineID,
		Time:      now,
		Session:   sessionInfo(next, cur.RentalType()),
	}
}

func (t *Tracker) endRental(next *session.State, cur *vast.Machine, now time.Time) session.Event {
	info := sessionInfo(next, cur.RentalType())
	info.Status = "ended"
	info.EndedAt = &now
	if next.StartedAt != nil {
		info.Duration = now.Sub(*next.StartedAt)
	}

	log.Printf("Rental ended: machine %d, session %s", next.MachineID, next.SessionID)

	next.Status = session.Absent
	next.SessionID = ""
	next.GPUCount = 0
	next.GPURate = 0
	next.StorageGB = 0
	next.StartedAt = nil
	next.PausedAt = nil
	next.ContractEnd = nil
	next.Seeded = false

	return session.Event{
		Kind:      session.EventRentalEnd,
		MachineID: next.MachineID,
		Time:      now,
		Session:   info,
	}
}

// errorChannel diffs the machine's error condition independently of the
// rental status. A disk/storage warning that is a side effect of a
// rental that just ended is suppressed rather than reported.
func (t *Tracker) errorChannel(prev, next *session.State, errText string, endedThisCycle bool, now time.Time) []session.Event {
	if errText != "" && endedThisCycle && diskOnlyWarning(errText) {
		errText = ""
	}

	if errText == "" {
		if !prev.ErrorActive {
			return nil
		}
		log.Printf("Machine %d recovered from error", next.MachineID)
		next.ErrorActive = false
		next.LastError = ""
		next.LastErrorNotifiedAt = nil
		return []session.Event{{
			Kind:      session.EventRecovery,
			MachineID: next.MachineID,
			Time:      now,
		}}
	}

	next.ErrorActive = true
	next.LastError = errText

	switch {
	case !prev.ErrorActive, prev.LastError != errText:
		// New condition.
	case t.ErrorPingInterval > 0 && prev.LastErrorNotifiedAt != nil &&
		now.Sub(*prev.LastErrorNotifiedAt) >= t.ErrorPingInterval:
		// Same condition persisting long enough to ping again.
	default:
		return nil
	}

	log.Printf("Machine %d error: %s", next.MachineID, errText)
	next.LastErrorNotifiedAt = &now
	return []session.Event{{
		Kind:      session.EventError,
		MachineID: next.MachineID,
		Time:      now,
		Error:     errText,
	}}
}

// diskOnlyWarning matches provider messages about released rental
// storage, which accompany a normal rental teardown.
func diskOnlyWarning(errText string) bool {
	lower := strings.ToLower(errText)
	return strings.Contains(lower, "disk") || strings.Contains(lower, "storage")
}

func sessionInfo(st *session.State, rentalType string) *session.SessionInfo {
	return &session.SessionInfo{
		ID:          st.SessionID,
		GPUCount:    st.GPUCount,
		GPUName:     st.GPUName,
		GPURate:     st.GPURate,
		StorageGB:   st.StorageGB,
		RentalType:  rentalType,
		Status:      st.Status.String(),
		StartedAt:   st.StartedAt,
		PausedAt:    st.PausedAt,
		ContractEnd: st.ContractEnd,
		Seeded:      st.Seeded,
	}
}

func machineInfo(cur *vast.Machine) session.MachineInfo {
	return session.MachineInfo{
		ID:          cur.ID,
		GPUName:     cur.GPUName,
		NumGPUs:     cur.NumGPUs,
		GPUsUsed:    cur.OccupiedCount(),
		Occupancy:   cur.GPUOccupancy,
		Geolocation: cur.Geolocation,
	}
}
