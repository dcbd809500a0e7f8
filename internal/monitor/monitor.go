// Package monitor drives the poll cycle: fetch snapshots, diff them
// into lifecycle events, persist the new state, and hand events to the
// notification and status layers.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/begna112/vast-monitor/internal/config"
	"github.com/begna112/vast-monitor/internal/session"
	"github.com/begna112/vast-monitor/internal/vast"
)

// Notifier fans a lifecycle event out to the configured targets.
// Delivery is best-effort; Dispatch never blocks the poll loop on a
// slow backend.
type Notifier interface {
	Dispatch(ev session.Event)
}

// StatusSink receives state updates and events for the live status
// surface (WebSocket dashboard). May be nil.
type StatusSink interface {
	BroadcastStates(states []*session.State)
	BroadcastEvent(ev session.Event)
}

// HistorySink records completed rentals. May be nil.
type HistorySink interface {
	RecordEnd(ctx context.Context, ev session.Event) error
}

type Monitor struct {
	cfg      *config.Config
	client   vast.Client
	store    *session.Store
	tracker  *Tracker
	notifier Notifier
	status   StatusSink
	history  HistorySink

	health *fetchHealth

	// states is the single shared mutable resource. Only the poll loop
	// writes it; the status accessor copies under the lock.
	mu     sync.RWMutex
	states map[int]*session.State

	startupDone bool
}

func New(cfg *config.Config, client vast.Client, store *session.Store, notifier Notifier) *Monitor {
	return &Monitor{
		cfg:      cfg,
		client:   client,
		store:    store,
		tracker:  &Tracker{ErrorPingInterval: cfg.Monitor.ErrorPingInterval},
		notifier: notifier,
		health:   newFetchHealth(cfg.Monitor.FetchFailureThreshold),
		states:   make(map[int]*session.State),
	}
}

// SetStatusSink wires the live status broadcaster. Call before Run.
func (m *Monitor) SetStatusSink(s StatusSink) { m.status = s }

// SetHistorySink wires the rental history recorder. Call before Run.
func (m *Monitor) SetHistorySink(h HistorySink) { m.history = h }

// States returns a copy of the tracked states for the status API.
func (m *Monitor) States() []*session.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.State, 0, len(m.states))
	for _, id := range m.cfg.MachineIDs {
		if st, ok := m.states[id]; ok {
			out = append(out, st.Clone())
		}
	}
	return out
}

// FetchHealth exposes the provider fetch counters for the health API.
func (m *Monitor) FetchHealth() (failures int, lastErr string, failed bool) {
	return m.health.snapshot()
}

// Run loads persisted state and drives the poll loop until ctx is
// cancelled. A corrupt state file is the only fatal load condition; the
// operator must delete or repair it. The in-flight cycle always
// finishes persisting before Run returns, so computed transitions are
// never lost to a shutdown signal.
func (m *Monitor) Run(ctx context.Context) error {
	states, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}
	m.mu.Lock()
	m.states = states
	m.mu.Unlock()
	log.Printf("Monitor started: %d machine(s), %d persisted record(s), poll every %s",
		len(m.cfg.MachineIDs), len(states), m.cfg.Monitor.PollInterval)

	ticker := time.NewTicker(m.cfg.Monitor.PollInterval)
	defer ticker.Stop()

	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor stopped")
			return nil
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// evalResult carries one machine's outcome out of the parallel
// evaluation fan-out, slot-indexed so event order is deterministic.
type evalResult struct {
	state  *session.State
	events []session.Event
}

// poll runs one cycle: fetch, seed on first contact, diff every
// configured machine, persist once, then notify. Cycles never overlap;
// the loop calls poll synchronously.
func (m *Monitor) poll(ctx context.Context) {
	now := time.Now().UTC()

	machines, err := m.client.Machines(ctx)
	if err != nil {
		log.Printf("Machine fetch failed, no observations this cycle: %v", err)
		if m.health.recordFailure(err) {
			m.emitSystem(now, "Provider Unreachable", []string{
				fmt.Sprintf("Machine fetch has failed %d times in a row.", m.cfg.Monitor.FetchFailureThreshold),
				fmt.Sprintf("Last error: %v", err),
			})
		}
		return
	}
	if m.health.recordSuccess() {
		m.emitSystem(now, "Provider Recovered", []string{"Machine fetch is succeeding again."})
	}

	// Machines outside the configured monitor list are skipped
	// entirely: no state, no events.
	byID := make(map[int]*vast.Machine, len(machines))
	for i := range machines {
		mach := &machines[i]
		if m.cfg.Tracks(mach.ID) {
			byID[mach.ID] = mach
		}
	}

	// Work on a private copy; m.states is published only under the lock
	// so the status API can read it concurrently.
	m.mu.RLock()
	prevStates := make(map[int]*session.State, len(m.states))
	for id, st := range m.states {
		prevStates[id] = st
	}
	m.mu.RUnlock()

	var events []session.Event
	if !m.startupDone {
		events = append(events, m.seedStartup(prevStates, byID, now)...)
		m.startupDone = true
	}

	// Per-machine diffing has no cross-machine dependency; evaluate in
	// parallel, each slot writing only its own result.
	results := make([]evalResult, len(m.cfg.MachineIDs))
	var wg sync.WaitGroup
	for i, id := range m.cfg.MachineIDs {
		prev, ok := prevStates[id]
		if !ok {
			prev = session.NewState(id)
		}
		cur := byID[id]
		wg.Add(1)
		go func(slot int, prev *session.State, cur *vast.Machine) {
			defer wg.Done()
			if cur == nil {
				results[slot] = evalResult{state: m.tracker.EvaluateMissing(prev)}
				return
			}
			evs, next := m.tracker.Evaluate(prev, cur, now)
			results[slot] = evalResult{state: next, events: evs}
		}(i, prev, cur)
	}
	wg.Wait()

	next := make(map[int]*session.State, len(results))
	for i, id := range m.cfg.MachineIDs {
		next[id] = results[i].state
		events = append(events, results[i].events...)
	}

	m.mu.Lock()
	m.states = next
	m.mu.Unlock()

	// Single atomic write per cycle, after all machines are evaluated.
	if err := m.store.Save(next); err != nil {
		log.Printf("State save failed: %v", err)
	}

	m.deliver(ctx, events)

	if m.status != nil {
		m.status.BroadcastStates(m.States())
	}
}

// seedStartup creates records for machines with no persisted state and
// assembles the one-time startup summary. Sessions already on disk or
// observed live at startup predate this process: no rental_start is
// emitted for them. Mutates the passed working copy only.
func (m *Monitor) seedStartup(states map[int]*session.State, byID map[int]*vast.Machine, now time.Time) []session.Event {
	var entries []session.StartupMachine
	for _, id := range m.cfg.MachineIDs {
		cur := byID[id]
		st, ok := states[id]
		var placeholders []session.SessionInfo
		if !ok {
			if cur == nil {
				// Never seen by provider either; EvaluateMissing will
				// mark it invalid this cycle.
				states[id] = session.NewState(id)
				continue
			}
			st, placeholders = SeedState(cur, now)
			states[id] = st
		}
		entries = append(entries, startupEntry(st, placeholders))
	}

	if !m.cfg.Notify.OnStartupExisting || len(entries) == 0 {
		return nil
	}
	return []session.Event{startupSummary(entries, now)}
}

// deliver routes events to history, notification targets, and the
// status sink. Failures in any consumer are isolated per event.
func (m *Monitor) deliver(ctx context.Context, events []session.Event) {
	for _, ev := range events {
		if ev.Kind == session.EventRentalEnd && m.history != nil {
			if err := m.history.RecordEnd(ctx, ev); err != nil {
				log.Printf("History record failed for machine %d: %v", ev.MachineID, err)
			}
		}
		if m.notifier != nil {
			if ev.Kind == session.EventSystem && !m.cfg.Notify.Enabled {
				continue
			}
			m.notifier.Dispatch(ev)
		}
		if m.status != nil {
			m.status.BroadcastEvent(ev)
		}
	}
}

// emitSystem sends a system-level notification, honoring the master
// notify toggle.
func (m *Monitor) emitSystem(now time.Time, title string, lines []string) {
	ev := session.Event{
		Kind:   session.EventSystem,
		Time:   now,
		System: &session.SystemInfo{Title: title, Lines: lines},
	}
	if m.notifier != nil && m.cfg.Notify.Enabled {
		m.notifier.Dispatch(ev)
	}
	if m.status != nil {
		m.status.BroadcastEvent(ev)
	}
}
