package ralph

import (
	"context"
	"sync"

	"tanuki/pkg/event"
)

// ActiveLoopError reports an attempt to start a loop on a thread that
// already has one running.
type ActiveLoopError struct {
	Thread event.ThreadID
}

func (e *ActiveLoopError) Error() string {
	return "ralph loop already active on thread " + string(e.Thread)
}

// Manager tracks at most one active loop per thread and lets callers cancel
// them. Completed loops unregister themselves.
type Manager struct {
	mu    sync.Mutex
	loops map[event.ThreadID]context.CancelFunc
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{loops: make(map[event.ThreadID]context.CancelFunc)}
}

// Start launches cfg as a goroutine-backed loop and calls done with its
// result once it terminates. It returns an ActiveLoopError if the thread
// already has a loop.
func (m *Manager) Start(ctx context.Context, cfg Config, done func(Result)) error {
	m.mu.Lock()
	if _, ok := m.loops[cfg.Thread]; ok {
		m.mu.Unlock()
		return &ActiveLoopError{Thread: cfg.Thread}
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.loops[cfg.Thread] = cancel
	m.mu.Unlock()

	go func() {
		res := Run(loopCtx, cfg)
		m.mu.Lock()
		delete(m.loops, cfg.Thread)
		m.mu.Unlock()
		cancel()
		if done != nil {
			done(res)
		}
	}()
	return nil
}

// Cancel stops the loop on thread, if any. It reports whether a loop was
// active. The loop's done callback still fires, with OutcomeCancelled.
func (m *Manager) Cancel(thread event.ThreadID) bool {
	m.mu.Lock()
	cancel, ok := m.loops[thread]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether thread has a running loop.
func (m *Manager) Active(thread event.ThreadID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loops[thread]
	return ok
}
