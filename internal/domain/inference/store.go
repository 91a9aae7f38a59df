package inference

import (
	"encoding/json"
	"errors"
	"sync"
)

var (
	// ErrUnknownJob marks an update for a job id the store has never
	// seen. This is an expected race (a push for a job submitted by
	// another session, or a late response after teardown) and callers
	// absorb it as a no-op.
	ErrUnknownJob = errors.New("unknown job id")
	// ErrTerminalRegression marks an update that would move a terminal
	// job back to a non-terminal status. Also absorbed as a no-op: push
	// and poll resolve in arbitrary order and the terminal result wins.
	ErrTerminalRegression = errors.New("terminal status cannot be overwritten by a non-terminal update")
)

// Update is a partial job mutation. Nil fields are left untouched.
type Update struct {
	Status    *Status
	Result    json.RawMessage
	Error     *string
	ModelType *string
}

// Store is the thread-safe, in-memory job registry. It is rebuilt from
// the gateway on process start; nothing is persisted locally.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// add registers a job created by the submission path.
func (s *Store) add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	j := job
	s.jobs[job.ID] = &j
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns copies of all jobs in submission order.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		if j, ok := s.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	return out
}

// ActiveJobs returns copies of all jobs still awaiting a terminal update.
func (s *Store) ActiveJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, id := range s.order {
		if j, ok := s.jobs[id]; ok && j.Active() {
			out = append(out, *j)
		}
	}
	return out
}

// ActiveCount returns the number of non-terminal jobs. This count is the
// sole trigger for starting and stopping the polling reconciler.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, j := range s.jobs {
		if j.Active() {
			n++
		}
	}
	return n
}

// ApplyUpdate merges a partial update into an existing job and returns the
// job before and after the merge. The terminal-monotonicity guard runs on
// every call: updates arrive from two channels in resolution order, so the
// guard can never be assumed from caller discipline.
func (s *Store) ApplyUpdate(id string, u Update) (before, after Job, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, Job{}, ErrUnknownJob
	}
	before = *j

	if u.Status != nil && j.Status.Terminal() && !u.Status.Terminal() {
		return before, before, ErrTerminalRegression
	}

	if u.Status != nil {
		j.Status = *u.Status
	}
	if len(u.Result) > 0 {
		j.Result = u.Result
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.ModelType != nil && *u.ModelType != "" {
		j.ModelType = *u.ModelType
	}

	return before, *j, nil
}
