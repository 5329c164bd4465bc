package workflow

import "sync"

// projectLocks serializes state mutations per project. Single-writer-per-
// project is a design requirement of the orchestrator; the state store's
// read-modify-write update is only safe under it, so the lock is held for
// the full duration of every mutating operation rather than relying on
// external scheduling discipline.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the named project and returns its release func.
func (p *projectLocks) acquire(projectID string) func() {
	p.mu.Lock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[projectID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
