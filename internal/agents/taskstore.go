package agents

import (
	"context"
	"sync"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
)

// MemTaskStore is an in-memory a2asrv.TaskStore. Specialists are stateless
// between restarts, so protocol task records only need to survive the
// request they belong to.
type MemTaskStore struct {
	mu    sync.RWMutex
	tasks map[sdka2a.TaskID]*sdka2a.Task
}

func NewMemTaskStore() *MemTaskStore {
	return &MemTaskStore{tasks: make(map[sdka2a.TaskID]*sdka2a.Task)}
}

func (s *MemTaskStore) Save(_ context.Context, task *sdka2a.Task) error {
	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	return nil
}

func (s *MemTaskStore) Get(_ context.Context, taskID sdka2a.TaskID) (*sdka2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, sdka2a.ErrTaskNotFound
	}
	return task, nil
}
