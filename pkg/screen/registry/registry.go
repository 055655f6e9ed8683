package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quietline/quietline/pkg/screen"
)

var (
	ErrDuplicateSession = errors.New("session id already registered")
	ErrSessionNotFound  = errors.New("session not found")
)

// Handle lets the registry reach into a running session without holding a
// reference to the engine itself.
type Handle struct {
	Cancel func()
}

// Registry owns the set of active call sessions. Structural changes
// (insert/remove) are serialized under one mutex; mutating a session's own
// state never takes this lock because sessions are single-writer.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
}

type entry struct {
	session *screen.CallSession
	handle  Handle
	once    sync.Once
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Create registers a new session for sessionID. It fails with
// ErrDuplicateSession when the id is already present.
func (r *Registry) Create(sessionID string, start time.Time) (*screen.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		return nil, ErrDuplicateSession
	}
	sess := screen.NewCallSession(sessionID, start)
	r.sessions[sessionID] = &entry{session: sess}
	r.wg.Add(1)
	return sess, nil
}

// Attach records the cancel handle for a running session. Attaching to an
// unknown id is a no-op; the session may already have been removed.
func (r *Registry) Attach(sessionID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sessionID]; ok {
		e.handle = h
	}
}

// Get returns the session for sessionID or ErrSessionNotFound.
func (r *Registry) Get(sessionID string) (*screen.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// Remove drops sessionID from the registry. Removing an absent id is a
// no-op, so teardown paths may call it more than once.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if ok {
		e.once.Do(r.wg.Done)
	}
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll asks every active session to stop. Used at shutdown.
func (r *Registry) CancelAll() (canceled int) {
	var cancels []func()
	r.mu.Lock()
	for _, e := range r.sessions {
		if e.handle.Cancel != nil {
			cancels = append(cancels, e.handle.Cancel)
		}
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has been removed or ctx
// expires. Returns false on timeout.
func (r *Registry) Wait(ctx context.Context) bool {
	if ctx == nil {
		r.wg.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
