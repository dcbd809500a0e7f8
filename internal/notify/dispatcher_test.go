package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
)

// recordingDeliverer captures deliveries and can fail a fixed number of
// times per target name.
type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
	failFor   map[string]int
}

func (d *recordingDeliverer) Deliver(ctx context.Context, t *Target, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFor[t.Name] > 0 {
		d.failFor[t.Name]--
		return errors.New("boom")
	}
	d.delivered = append(d.delivered, t.Name)
	return nil
}

func (d *recordingDeliverer) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

func systemTestEvent() session.Event {
	return session.Event{
		Kind:   session.EventSystem,
		Time:   time.Now(),
		System: &session.SystemInfo{Title: "Test", Lines: []string{"hello"}},
	}
}

func newTestDispatcher(targets []*Target, deliverer Deliverer) *Dispatcher {
	d := NewDispatcher(targets, deliverer)
	d.backoff = time.Millisecond
	return d
}

func TestDispatcherDeliversToSubscribedTargets(t *testing.T) {
	targets := []*Target{
		{Name: "all", Service: "webhook", URL: "https://example.com/a"},
		{Name: "errors-only", Service: "webhook", URL: "https://example.com/b",
			Events: map[session.EventKind]bool{session.EventError: true}},
	}
	deliverer := &recordingDeliverer{}
	d := newTestDispatcher(targets, deliverer)

	d.Dispatch(systemTestEvent())
	d.Close()

	names := deliverer.names()
	if len(names) != 1 || names[0] != "all" {
		t.Errorf("delivered to %v, want [all]", names)
	}
}

func TestDispatcherRetriesThenDelivers(t *testing.T) {
	targets := []*Target{{Name: "t", Service: "webhook", URL: "https://example.com"}}
	deliverer := &recordingDeliverer{failFor: map[string]int{"t": deliveryAttempts - 1}}
	d := newTestDispatcher(targets, deliverer)

	d.Dispatch(systemTestEvent())
	d.Close()

	if names := deliverer.names(); len(names) != 1 {
		t.Errorf("delivery after retries = %v", names)
	}
}

func TestDispatcherIsolatesBrokenTarget(t *testing.T) {
	targets := []*Target{
		{Name: "broken", Service: "webhook", URL: "https://example.com/a"},
		{Name: "healthy", Service: "webhook", URL: "https://example.com/b"},
	}
	deliverer := &recordingDeliverer{failFor: map[string]int{"broken": deliveryAttempts}}
	d := newTestDispatcher(targets, deliverer)

	d.Dispatch(systemTestEvent())
	d.Close()

	names := deliverer.names()
	if len(names) != 1 || names[0] != "healthy" {
		t.Errorf("deliveries = %v, want [healthy]", names)
	}
}

func TestDispatcherNoTargets(t *testing.T) {
	d := newTestDispatcher(nil, &recordingDeliverer{})
	d.Dispatch(systemTestEvent())
	d.Close()
}
