package store

import (
	"context"
	"sync"

	"github.com/stemsplit/stemsplit/internal/domain"
)

// Memory is the default JobStore. A single mutex guards the map and the
// queue; all jobs are lost when the process exits.
type Memory struct {
	mu    sync.Mutex
	jobs  map[string]domain.Job
	queue []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]domain.Job),
	}
}

func (m *Memory) Enqueue(_ context.Context, id, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; ok {
		return domain.ErrJobExists
	}

	m.jobs[id] = domain.Job{ID: id, Model: model, Status: domain.StatusPending}
	m.queue = append(m.queue, id)
	return nil
}

func (m *Memory) DequeueNext(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, nil
	}

	id := m.queue[0]
	m.queue = m.queue[1:]

	job := m.jobs[id]
	job.Status = domain.StatusProcessing
	m.jobs[id] = job

	return &job, nil
}

func (m *Memory) SetStatus(_ context.Context, id string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}

	job.Status = status
	m.jobs[id] = job
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (m *Memory) GetStatus(_ context.Context, id string) (domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.StatusNone, nil
	}
	return job.Status, nil
}

func (m *Memory) Remove(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || !job.Status.Terminal() {
		return false, nil
	}

	delete(m.jobs, id)
	return true, nil
}

func (m *Memory) RemoveAll(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			return false, nil
		}
	}

	m.jobs = make(map[string]domain.Job)
	m.queue = nil
	return true, nil
}
