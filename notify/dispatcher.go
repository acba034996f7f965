package notify

import (
	"context"
	"sync"
	"time"

	"github.com/programme-lv/proctor/logger"
)

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Dispatcher delivers every event to all notifiers in the background
// and only logs failures.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, timeout: timeout}
}

func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	log := logger.FromContext(ctx)
	// outlive the request that triggered the event
	ctx = context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			if err := n.Notify(ctx, e); err != nil {
				log.Warn("failed to deliver notification", "event", e.Type(), "error", err)
			}
		}(n)
	}
}

// Wait blocks until every started delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
