package tui

import (
	"sync"

	"chat-quiz-service/internal/domain"
)

// eventPump batches session events onto the UI goroutine. At most one flush is
// queued at a time, so a stopped application can never leave the forwarder
// blocked on a full update queue.
type eventPump struct {
	queue func(func())
	apply func([]domain.Event)

	mu      sync.Mutex
	pending []domain.Event
	queued  bool
}

func newEventPump(queue func(func()), apply func([]domain.Event)) *eventPump {
	return &eventPump{queue: queue, apply: apply}
}

// run forwards events until the channel closes or stop is closed.
func (p *eventPump) run(events <-chan domain.Event, stop <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.push(ev)
		case <-stop:
			return
		}
	}
}

func (p *eventPump) push(ev domain.Event) {
	p.mu.Lock()
	p.pending = append(p.pending, ev)
	if p.queued {
		p.mu.Unlock()
		return
	}
	p.queued = true
	p.mu.Unlock()
	p.queue(p.flush)
}

// flush runs on the UI goroutine.
func (p *eventPump) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.queued = false
	p.mu.Unlock()
	if len(batch) > 0 {
		p.apply(batch)
	}
}
