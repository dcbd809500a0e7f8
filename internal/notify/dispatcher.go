package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
)

// Deliverer sends one formatted message to one target.
type Deliverer interface {
	Deliver(ctx context.Context, t *Target, msg Message) error
}

const (
	maxWorkers       = 8
	deliveryAttempts = 3
	deliveryBackoff  = 2 * time.Second
	deliveryTimeout  = 15 * time.Second
	queueDepth       = 64
)

// Dispatcher fans events out to the targets through a fixed worker
// pool. Delivery failures are retried with backoff, then logged and
// dropped; one broken target never blocks the others or the poll loop.
type Dispatcher struct {
	targets   []*Target
	deliverer Deliverer

	jobs chan dispatchJob
	wg   sync.WaitGroup

	backoff time.Duration

	closeOnce sync.Once
}

type dispatchJob struct {
	target *Target
	msg    Message
}

func NewDispatcher(targets []*Target, deliverer Deliverer) *Dispatcher {
	d := &Dispatcher{
		targets:   targets,
		deliverer: deliverer,
		jobs:      make(chan dispatchJob, queueDepth),
		backoff:   deliveryBackoff,
	}
	workers := len(targets)
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch formats the event per target and enqueues the deliveries.
// It never blocks: when the queue is full the delivery is dropped with
// a log line, favoring a live poll loop over a complete notification
// stream.
func (d *Dispatcher) Dispatch(ev session.Event) {
	for _, t := range Route(d.targets, ev.Kind) {
		msg := ServiceFor(t.Service).Format(ev, t)
		select {
		case d.jobs <- dispatchJob{target: t, msg: msg}:
		default:
			log.Printf("Notification queue full, dropping %s for target %s", ev.Kind, t.Name)
		}
	}
}

// Close stops accepting work and waits for queued deliveries to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.send(j.target, j.msg)
	}
}

// send attempts the delivery with exponential backoff. Errors are
// logged and swallowed.
func (d *Dispatcher) send(t *Target, msg Message) {
	backoff := d.backoff
	var err error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err = d.deliverer.Deliver(ctx, t, msg)
		cancel()
		if err == nil {
			return
		}
		if attempt < deliveryAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	log.Printf("Delivery to %s failed after %d attempts: %v", t.Name, deliveryAttempts, err)
}
