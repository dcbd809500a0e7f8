package monitor

import (
	"log"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
	"github.com/begna112/vast-monitor/internal/vast"
)

// SeedState builds the initial record for a machine with no persisted
// history. Ongoing rentals observed at startup predate this process, so
// no rental_start is emitted for them; they are reported once through
// the startup summary instead.
//
// When the provider reports several rentals running on one machine the
// startup placeholders are split one per session, so later diffing can
// track each independently. Returned alongside the state is the list of
// placeholder session infos for the startup payload.
func SeedState(cur *vast.Machine, now time.Time) (*session.State, []session.SessionInfo) {
	st := session.NewState(cur.ID)
	st.NumGPUs = cur.NumGPUs
	st.Occupancy = cur.GPUOccupancy
	st.Geolocation = cur.Geolocation
	st.GPUName = cur.GPUName
	// An error condition present at startup is left for the first
	// Evaluate call, which reports it through the error channel.

	gpus := cur.GPUsAllocated()
	storage := cur.StorageAllocated()

	switch {
	case gpus:
		st.Status = session.Active
	case storage:
		st.Status = session.Paused
	default:
		return st, nil
	}

	running := cur.CurrentRentalsRunning
	if running < 1 {
		running = 1
	}
	occupied := cur.OccupiedCount()
	if st.Status == session.Paused {
		running = 1
		occupied = 0
	}
	if running > occupied && occupied > 0 {
		running = occupied
	}

	// Spread the occupied slots across the placeholder sessions the way
	// the provider counters suggest they are grouped.
	placeholders := make([]session.SessionInfo, 0, running)
	remaining := occupied
	for i := 0; i < running; i++ {
		sid := st.NextSessionID()
		count := 0
		if occupied > 0 {
			sessionsLeft := running - i
			count = remaining - (sessionsLeft - 1)
			if count < 1 {
				count = 1
			}
			remaining -= count
		}
		info := session.SessionInfo{
			ID:          sid,
			GPUCount:    count,
			GPUName:     cur.GPUName,
			GPURate:     cur.GPURate(),
			StorageGB:   cur.AllocDiskSpace,
			RentalType:  cur.RentalType(),
			Status:      st.Status.String(),
			StartedAt:   &now,
			ContractEnd: cur.ContractEnd(),
			Seeded:      true,
		}
		placeholders = append(placeholders, info)
		log.Printf("Detected ongoing rental at startup: machine %d, session %s, x%d %s",
			cur.ID, sid, count, cur.GPUName)
	}

	// The tracker diffs against the last placeholder; the machine-level
	// status aggregates the rest.
	last := placeholders[len(placeholders)-1]
	st.SessionID = last.ID
	st.GPUCount = occupied
	st.GPURate = cur.GPURate()
	st.StorageGB = cur.AllocDiskSpace
	st.StartedAt = &now
	st.ContractEnd = cur.ContractEnd()
	st.Seeded = true
	if st.Status == session.Paused {
		st.PausedAt = &now
	}
	return st, placeholders
}

// startupSummary assembles the single startup event emitted on the
// first successful poll after process start. It covers every tracked
// machine: seeded placeholders plus sessions reloaded from disk, with
// stored-vs-running counts per machine.
func startupSummary(machines []session.StartupMachine, now time.Time) session.Event {
	return session.Event{
		Kind:    session.EventStartup,
		Time:    now,
		Startup: machines,
	}
}

// startupEntry summarizes one machine for the startup event.
func startupEntry(st *session.State, placeholders []session.SessionInfo) session.StartupMachine {
	entry := session.StartupMachine{
		Machine: session.MachineInfo{
			ID:          st.MachineID,
			GPUName:     st.GPUName,
			NumGPUs:     st.NumGPUs,
			GPUsUsed:    st.GPUCount,
			Occupancy:   st.Occupancy,
			Geolocation: st.Geolocation,
		},
	}
	switch {
	case len(placeholders) > 0:
		entry.Sessions = placeholders
	case st.HasRental():
		entry.Sessions = []session.SessionInfo{*sessionInfo(st, "")}
	}
	for _, info := range entry.Sessions {
		if info.Status == session.Paused.String() {
			entry.Stored++
		} else {
			entry.Running++
		}
	}
	return entry
}
