// Package scheduler provides the kv-backed store for host-managed
// scheduled tasks. Task records are msgpack-encoded and keyed by id under
// the "scheduler/task" prefix.
//
// This is the persistence half of the scheduler only: firing tasks on
// their schedule belongs to the runtime's backend loop, which is outside
// the host boundary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/saorsa-labs/fae/pkg/kv"
)

// Errors returned by Store operations.
var (
	// ErrNotFound is returned when a task id does not exist.
	ErrNotFound = errors.New("scheduler: task not found")
	// ErrInvalidSpec is returned when a task spec fails validation.
	ErrInvalidSpec = errors.New("scheduler: invalid task spec")
)

var taskPrefix = kv.Key{"scheduler", "task"}

// Task is one scheduled task record.
type Task struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	Schedule  string    `json:"schedule" msgpack:"schedule"`
	Payload   string    `json:"payload,omitempty" msgpack:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Spec is the mutable part of a task, as supplied by scheduler.create and
// scheduler.update payloads.
type Spec struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Payload  string `json:"payload,omitempty"`
}

func (s *Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSpec)
	}
	if s.Schedule == "" {
		return fmt.Errorf("%w: schedule cannot be empty", ErrInvalidSpec)
	}
	return nil
}

// Store persists tasks in a kv.Store.
type Store struct {
	kv kv.Store
}

// NewStore creates a task store over s. The store does not own s; closing
// the underlying kv store is the caller's responsibility.
func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

func taskKey(id string) kv.Key {
	return append(taskPrefix[:len(taskPrefix):len(taskPrefix)], id)
}

// Create stores a new task from spec and returns it with a fresh id.
func (s *Store) Create(ctx context.Context, spec Spec) (*Task, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Schedule:  spec.Schedule,
		Payload:   spec.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Get returns the task with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.kv.Get(ctx, taskKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: get task %s: %w", id, err)
	}
	var task Task
	if err := msgpack.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("scheduler: decode task %s: %w", id, err)
	}
	return &task, nil
}

// Update replaces the mutable fields of an existing task.
func (s *Store) Update(ctx context.Context, id string, spec Spec) (*Task, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Name = spec.Name
	task.Schedule = spec.Schedule
	task.Payload = spec.Payload
	task.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes a task. Returns ErrNotFound if the id does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, taskKey(id)); err != nil {
		return fmt.Errorf("scheduler: delete task %s: %w", id, err)
	}
	return nil
}

// List returns all tasks ordered by id.
func (s *Store) List(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	for entry, err := range s.kv.List(ctx, taskPrefix) {
		if err != nil {
			return nil, fmt.Errorf("scheduler: list tasks: %w", err)
		}
		var task Task
		if err := msgpack.Unmarshal(entry.Value, &task); err != nil {
			return nil, fmt.Errorf("scheduler: decode task %s: %w", entry.Key, err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// DeleteAll removes every task.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.kv.DeletePrefix(ctx, taskPrefix); err != nil {
		return fmt.Errorf("scheduler: delete all tasks: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, task *Task) error {
	data, err := msgpack.Marshal(task)
	if err != nil {
		return fmt.Errorf("scheduler: encode task %s: %w", task.ID, err)
	}
	if err := s.kv.Set(ctx, taskKey(task.ID), data); err != nil {
		return fmt.Errorf("scheduler: store task %s: %w", task.ID, err)
	}
	return nil
}
