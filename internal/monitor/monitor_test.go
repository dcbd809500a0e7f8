package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/begna112/vast-monitor/internal/config"
	"github.com/begna112/vast-monitor/internal/session"
	"github.com/begna112/vast-monitor/internal/vast"
)

// stubClient returns a fixed response per call, set by the test.
type stubClient struct {
	mu       sync.Mutex
	machines []vast.Machine
	err      error
}

func (c *stubClient) set(machines []vast.Machine, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machines = machines
	c.err = err
}

func (c *stubClient) Machines(ctx context.Context) ([]vast.Machine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machines, c.err
}

// recordingNotifier captures dispatched events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []session.Event
}

func (n *recordingNotifier) Dispatch(ev session.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) take() []session.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	evs := n.events
	n.events = nil
	return evs
}

func testConfig(t *testing.T, ids ...int) *config.Config {
	t.Helper()
	return &config.Config{
		MachineIDs: ids,
		StateDir:   t.TempDir(),
		Monitor: config.MonitorConfig{
			PollInterval:          time.Minute,
			ErrorPingInterval:     time.Hour,
			FetchFailureThreshold: 3,
		},
		Notify: config.NotifyConfig{
			Enabled:           true,
			OnStartupExisting: true,
		},
	}
}

func newTestMonitor(t *testing.T, cfg *config.Config, client vast.Client) (*Monitor, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	store := session.NewStore(cfg.StatePath())
	return New(cfg, client, store, notifier), notifier
}

func TestPollLifecycle(t *testing.T) {
	cfg := testConfig(t, 9001)
	client := &stubClient{}
	mon, notifier := newTestMonitor(t, cfg, client)

	ctx := context.Background()

	// First poll: idle machine, nothing persisted. Seeding finds no
	// rentals, so a startup summary for the empty machine is all there is.
	client.set([]vast.Machine{*testMachine("x x x x", 0)}, nil)
	mon.poll(ctx)
	evs := notifier.take()
	if len(evs) != 1 || evs[0].Kind != session.EventStartup {
		t.Fatalf("first poll events: %v", kinds(evs))
	}

	// Rental appears.
	client.set([]vast.Machine{*testMachine("D D x x", 64)}, nil)
	mon.poll(ctx)
	assertKinds(t, notifier.take(), session.EventRentalStart)

	// Nothing changed.
	mon.poll(ctx)
	assertKinds(t, notifier.take())

	// Rental ends.
	client.set([]vast.Machine{*testMachine("x x x x", 0)}, nil)
	mon.poll(ctx)
	assertKinds(t, notifier.take(), session.EventRentalEnd)

	states := mon.States()
	if len(states) != 1 {
		t.Fatalf("States() = %d entries", len(states))
	}
	if states[0].Status != session.Absent {
		t.Errorf("final status = %v", states[0].Status)
	}
}

func TestPollSeedsOngoingRental(t *testing.T) {
	cfg := testConfig(t, 9001)
	client := &stubClient{}
	client.set([]vast.Machine{*testMachine("D D x x", 64)}, nil)
	mon, notifier := newTestMonitor(t, cfg, client)

	// The rental is already running when the monitor first looks: one
	// startup summary, no rental_start.
	mon.poll(context.Background())
	evs := notifier.take()
	if len(evs) != 1 || evs[0].Kind != session.EventStartup {
		t.Fatalf("events = %v, want single startup", kinds(evs))
	}
	if len(evs[0].Startup) != 1 {
		t.Fatalf("startup covers %d machines, want 1", len(evs[0].Startup))
	}
	if evs[0].Startup[0].Running != 1 {
		t.Errorf("startup running = %d, want 1", evs[0].Startup[0].Running)
	}

	// The seeded rental ending is reported normally.
	client.set([]vast.Machine{*testMachine("x x x x", 0)}, nil)
	mon.poll(context.Background())
	assertKinds(t, notifier.take(), session.EventRentalEnd)
}

func TestRestartDoesNotReplayEvents(t *testing.T) {
	cfg := testConfig(t, 9001)
	client := &stubClient{}
	client.set([]vast.Machine{*testMachine("D D x x", 64)}, nil)

	// First process: observes the rental start.
	mon1, notifier1 := newTestMonitor(t, cfg, client)
	mon1.poll(context.Background())
	mon1.poll(context.Background())
	notifier1.take()

	// Second process with the same state dir: the persisted rental is
	// confirmed by the snapshot, so only the startup summary appears.
	mon2, notifier2 := newTestMonitor(t, cfg, client)
	states, err := mon2.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	mon2.states = states
	mon2.poll(context.Background())

	evs := notifier2.take()
	if len(evs) != 1 || evs[0].Kind != session.EventStartup {
		t.Fatalf("restart events = %v, want single startup", kinds(evs))
	}
}

func TestPollMissingMachine(t *testing.T) {
	cfg := testConfig(t, 9001, 9002)
	client := &stubClient{}
	// Only one of the two configured machines exists.
	client.set([]vast.Machine{*testMachine("x x x x", 0)}, nil)
	mon, _ := newTestMonitor(t, cfg, client)

	mon.poll(context.Background())

	states := mon.States()
	if len(states) != 2 {
		t.Fatalf("States() = %d entries, want 2", len(states))
	}
	byID := map[int]*session.State{}
	for _, st := range states {
		byID[st.MachineID] = st
	}
	if byID[9002].Status != session.Invalid {
		t.Errorf("missing machine status = %v, want invalid", byID[9002].Status)
	}
	if byID[9001].Status != session.Absent {
		t.Errorf("present machine status = %v", byID[9001].Status)
	}
}

func TestPollFetchFailureThreshold(t *testing.T) {
	cfg := testConfig(t, 9001)
	client := &stubClient{}
	client.set(nil, errors.New("connection refused"))
	mon, notifier := newTestMonitor(t, cfg, client)

	ctx := context.Background()
	mon.poll(ctx)
	mon.poll(ctx)
	assertKinds(t, notifier.take())

	// Third consecutive failure raises a single system event.
	mon.poll(ctx)
	evs := notifier.take()
	if len(evs) != 1 || evs[0].Kind != session.EventSystem {
		t.Fatalf("events = %v, want one system event", kinds(evs))
	}
	mon.poll(ctx)
	assertKinds(t, notifier.take())

	// Recovery raises another system event, then normal processing.
	client.set([]vast.Machine{*testMachine("x x x x", 0)}, nil)
	mon.poll(ctx)
	evs = notifier.take()
	if len(evs) < 1 || evs[0].Kind != session.EventSystem {
		t.Fatalf("recovery events = %v", kinds(evs))
	}
}
