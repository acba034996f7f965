package notify

import (
	"context"
	"sync"
)

// Bus fans events out to in-process subscribers, e.g. server-sent
// event streams. Slow subscribers miss events instead of blocking.
type Bus struct {
	lock sync.Mutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: map[chan Event]struct{}{}}
}

func (bus *Bus) Subscribe() (<-chan Event, func()) {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	ch := make(chan Event, 16)
	bus.subs[ch] = struct{}{}
	return ch, func() {
		bus.lock.Lock()
		defer bus.lock.Unlock()
		if _, ok := bus.subs[ch]; ok {
			delete(bus.subs, ch)
			close(ch)
		}
	}
}

func (bus *Bus) Notify(ctx context.Context, e Event) error {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	for sub := range bus.subs {
		select {
		case sub <- e:
		default:
		}
	}
	return nil
}
