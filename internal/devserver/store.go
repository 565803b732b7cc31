package devserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound indicates the referenced task does not exist in the
// namespace the caller is operating on.
var ErrTaskNotFound = errors.New("task not found")

// Task is one entry on a user's task list.
type Task struct {
	ID        uuid.UUID
	Title     string
	Notes     string
	Done      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskStore is an in-memory, namespace-partitioned task store. Each
// namespace (one per user database) has its own independent task set;
// operations never see tasks from another namespace.
//
// TaskStore is safe for concurrent use.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]map[uuid.UUID]*Task
	now   func() time.Time
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]map[uuid.UUID]*Task),
		now:   time.Now,
	}
}

// Create adds a task and returns a copy of it.
func (s *TaskStore) Create(namespace, title, notes string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, errors.New("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.tasks[namespace]
	if ns == nil {
		ns = make(map[uuid.UUID]*Task)
		s.tasks[namespace] = ns
	}

	now := s.now()
	task := &Task{
		ID:        uuid.New(),
		Title:     title,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ns[task.ID] = task
	return *task, nil
}

// List returns the namespace's tasks ordered by creation time. Done
// tasks are excluded unless includeDone is set.
func (s *TaskStore) List(namespace string, includeDone bool) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, task := range s.tasks[namespace] {
		if task.Done && !includeDone {
			continue
		}
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update changes a task's title and/or notes. Empty arguments leave
// the corresponding field unchanged.
func (s *TaskStore) Update(namespace string, id uuid.UUID, title, notes string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.find(namespace, id)
	if err != nil {
		return Task{}, err
	}
	if t := strings.TrimSpace(title); t != "" {
		task.Title = t
	}
	if notes != "" {
		task.Notes = notes
	}
	task.UpdatedAt = s.now()
	return *task, nil
}

// Complete marks a task done. Completing an already-done task is not
// an error.
func (s *TaskStore) Complete(namespace string, id uuid.UUID) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.find(namespace, id)
	if err != nil {
		return Task{}, err
	}
	task.Done = true
	task.UpdatedAt = s.now()
	return *task, nil
}

// Delete removes a task.
func (s *TaskStore) Delete(namespace string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.find(namespace, id); err != nil {
		return err
	}
	delete(s.tasks[namespace], id)
	return nil
}

func (s *TaskStore) find(namespace string, id uuid.UUID) (*Task, error) {
	task, ok := s.tasks[namespace][id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return task, nil
}
