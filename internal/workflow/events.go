package workflow

import (
	"context"
	"sync"

	"plotline/internal/jobs"
)

const subscriberBuffer = 16

type subscriber struct {
	ch   chan *jobs.Job
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// eventHub fans job snapshots out to per-job subscribers. Slow subscribers
// lose their oldest pending snapshot rather than blocking the writer.
type eventHub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]*subscriber
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[int]*subscriber)}
}

func (h *eventHub) subscribe(jobID string) (*subscriber, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	sub := &subscriber{ch: make(chan *jobs.Job, subscriberBuffer)}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]*subscriber)
	}
	h.subs[jobID][id] = sub
	return sub, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[jobID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(h.subs, jobID)
			}
		}
		sub.close()
	}
}

func (h *eventHub) publish(job *jobs.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[job.ID]
	for _, sub := range set {
		select {
		case sub.ch <- job.Clone():
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- job.Clone():
			default:
			}
		}
		if job.Status.Terminal() {
			sub.close()
		}
	}
	if job.Status.Terminal() {
		delete(h.subs, job.ID)
	}
}

// Subscription streams snapshots of one job.
type Subscription struct {
	// Current is the job as stored when the subscription was opened.
	Current *jobs.Job
	// Updates delivers every later snapshot and is closed after the terminal
	// one, or immediately when Current is already terminal.
	Updates <-chan *jobs.Job

	close func()
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.close != nil {
		s.close()
	}
}

// Subscribe opens a snapshot stream for jobID.
func (m *Manager) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	sub, cancel := m.events.subscribe(jobID)
	current, err := m.store.Get(ctx, jobID)
	if err != nil {
		cancel()
		return nil, err
	}
	if current.Status.Terminal() {
		cancel()
	}
	return &Subscription{Current: current, Updates: sub.ch, close: cancel}, nil
}

// Wait blocks until jobID is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, jobID string) (*jobs.Job, error) {
	sub, err := m.Subscribe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer sub.Close()
	if sub.Current.Status.Terminal() {
		return sub.Current, nil
	}
	for {
		select {
		case job, ok := <-sub.Updates:
			if !ok {
				return m.store.Get(ctx, jobID)
			}
			if job.Status.Terminal() {
				return job, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
