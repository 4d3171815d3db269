package workflow

import "sync"

// projectLocks enforces one active job per project inside this process. The
// jobs table carries the same rule as a unique index.
type projectLocks struct {
	mu   sync.Mutex
	held map[string]string
}

func newProjectLocks() *projectLocks {
	return &projectLocks{held: make(map[string]string)}
}

func (l *projectLocks) tryAcquire(projectID, jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[projectID]; busy {
		return false
	}
	l.held[projectID] = jobID
	return true
}

// release frees the project only if jobID still holds it.
func (l *projectLocks) release(projectID, jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[projectID] == jobID {
		delete(l.held, projectID)
	}
}
