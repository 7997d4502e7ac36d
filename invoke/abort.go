package invoke

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// StopState answers whether work should stop. The executor checks it before
// every attempt and every backoff sleep.
type StopState interface {
	IsGloballyStopped() bool
	IsSessionStopped(sessionID string) bool
}

// Coordinator maps session ids to the cancel functions of in-flight calls so
// a stop can reach a call without holding a reference to it. Calls without a
// session id go into a session-less pool.
type Coordinator struct {
	mu        sync.Mutex
	sessions  map[string]map[string]context.CancelFunc
	pool      map[string]context.CancelFunc
	stopped   map[string]bool
	emergency bool
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		sessions: make(map[string]map[string]context.CancelFunc),
		pool:     make(map[string]context.CancelFunc),
		stopped:  make(map[string]bool),
	}
}

// Register adds cancel under sessionID (or the pool when empty) and returns
// the handle id to pass to Unregister. If a matching stop is already in
// effect, cancel is invoked before Register returns.
func (c *Coordinator) Register(sessionID string, cancel context.CancelFunc) string {
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.emergency || (sessionID != "" && c.stopped[sessionID]) {
		cancel()
	}

	if sessionID == "" {
		c.pool[id] = cancel
		return id
	}
	handles, ok := c.sessions[sessionID]
	if !ok {
		handles = make(map[string]context.CancelFunc)
		c.sessions[sessionID] = handles
	}
	handles[id] = cancel
	return id
}

// Unregister removes a handle. Unknown handles are ignored.
func (c *Coordinator) Unregister(sessionID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID == "" {
		delete(c.pool, id)
		return
	}
	handles, ok := c.sessions[sessionID]
	if !ok {
		return
	}
	delete(handles, id)
	if len(handles) == 0 {
		delete(c.sessions, sessionID)
	}
}

// track registers a fresh child of ctx and returns it with a release func
// that unregisters and cancels it.
func (c *Coordinator) track(ctx context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	id := c.Register(sessionID, cancel)
	return ctx, func() {
		c.Unregister(sessionID, id)
		cancel()
	}
}

// StopSession marks sessionID stopped and cancels its registered calls. It
// returns the number of calls cancelled. The session stays stopped until
// ClearSession.
func (c *Coordinator) StopSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped[sessionID] = true
	handles := c.sessions[sessionID]
	for _, cancel := range handles {
		cancel()
	}
	return len(handles)
}

// EmergencyStop cancels every registered call in every session and the pool.
// New calls fail immediately until ResetEmergencyStop.
func (c *Coordinator) EmergencyStop() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.emergency = true
	n := 0
	for _, handles := range c.sessions {
		for _, cancel := range handles {
			cancel()
			n++
		}
	}
	for _, cancel := range c.pool {
		cancel()
		n++
	}
	return n
}

// ClearSession re-arms a stopped session.
func (c *Coordinator) ClearSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stopped, sessionID)
}

// ResetEmergencyStop re-arms the coordinator after an emergency stop.
func (c *Coordinator) ResetEmergencyStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emergency = false
}

// IsGloballyStopped implements StopState.
func (c *Coordinator) IsGloballyStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergency
}

// IsSessionStopped implements StopState.
func (c *Coordinator) IsSessionStopped(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped[sessionID]
}

// Active returns the number of calls registered under sessionID, or in the
// pool when sessionID is empty.
func (c *Coordinator) Active(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sessionID == "" {
		return len(c.pool)
	}
	return len(c.sessions[sessionID])
}

var _ StopState = (*Coordinator)(nil)
