package main

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/common/logger"
)

// jobUpdate is one lifecycle event routed to the sockets following a job.
// The payload travels exactly as the worker published it; terminal marks
// the job's last event, after which its followers are closed.
type jobUpdate struct {
	jobID    uuid.UUID
	payload  []byte
	terminal bool
}

// hub owns the job-id to follower index. All mutations happen on the run
// goroutine; the mutex only guards reads from the health handler.
type hub struct {
	followers map[uuid.UUID][]*client
	mu        sync.RWMutex

	register   chan *client
	unregister chan *client
	updates    chan *jobUpdate

	// closed when the run loop exits so pump goroutines never block
	// handing a dead hub their client
	done chan struct{}

	log *logger.Logger
}

func newHub(log *logger.Logger) *hub {
	return &hub{
		followers:  make(map[uuid.UUID][]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		updates:    make(chan *jobUpdate, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// run dispatches registrations and updates until the context ends.
func (h *hub) run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.drop(c)
		case u := <-h.updates:
			h.deliver(u)
		}
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.followers[c.jobID] = append(h.followers[c.jobID], c)
	count := len(h.followers[c.jobID])
	h.mu.Unlock()

	h.log.Debug("follower registered", "job_id", c.jobID, "followers", count)
}

// drop removes one follower and closes its send channel. Calling it again
// for the same client is a no-op: only members of the index get closed.
func (h *hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	followers := h.followers[c.jobID]
	for i, f := range followers {
		if f != c {
			continue
		}
		h.followers[c.jobID] = append(followers[:i], followers[i+1:]...)
		if len(h.followers[c.jobID]) == 0 {
			delete(h.followers, c.jobID)
		}
		close(c.send)
		return
	}
}

// deliver fans an update out to the job's followers. A follower that
// cannot keep up is dropped rather than allowed to stall the loop. A
// terminal update closes every follower once the payload is queued; the
// send buffer drains before the close is observed, so the last event
// still reaches them.
func (h *hub) deliver(u *jobUpdate) {
	h.mu.RLock()
	followers := append([]*client(nil), h.followers[u.jobID]...)
	h.mu.RUnlock()

	for _, f := range followers {
		select {
		case f.send <- u.payload:
		default:
			h.log.Warn("follower not keeping up, dropping", "job_id", u.jobID)
			h.drop(f)
		}
	}

	if !u.terminal {
		return
	}

	h.mu.RLock()
	remaining := append([]*client(nil), h.followers[u.jobID]...)
	h.mu.RUnlock()

	for _, f := range remaining {
		h.drop(f)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for _, followers := range h.followers {
		for _, f := range followers {
			close(f.send)
		}
	}
	h.followers = make(map[uuid.UUID][]*client)
	h.mu.Unlock()

	close(h.done)
	h.log.Info("hub stopped")
}

func (h *hub) connectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, followers := range h.followers {
		count += len(followers)
	}
	return count
}

func (h *hub) jobCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.followers)
}
