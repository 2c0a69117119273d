// Package task declares named build tasks with dependencies and runs them
// in dependency order, each at most once per invocation.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/lo"

	"github.com/hupe1980/elmdev/internal/logging"
)

var (
	// ErrNotFound is returned when a task or dependency is not registered.
	ErrNotFound = errors.New("task not found")

	// ErrCycle is returned when a task depends on itself, directly or not.
	ErrCycle = errors.New("task was called recursively")
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// Task is a named unit of work.
type Task struct {
	Name        string
	Description string

	// Deps are run, in order, before the task itself.
	Deps []string

	// Hidden tasks are runnable but not listed.
	Hidden bool

	Run Func
}

// Registry holds tasks by name.
type Registry struct {
	tasks map[string]*Task
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds t. Names must be unique and non-empty.
func (r *Registry) Register(t *Task) error {
	if t == nil || t.Name == "" {
		return errors.New("task name must not be empty")
	}

	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("task %q already registered", t.Name)
	}

	r.tasks[t.Name] = t

	return nil
}

// MustRegister is Register for static task tables.
func (r *Registry) MustRegister(tasks ...*Task) {
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the task called name.
func (r *Registry) Get(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// List returns the visible tasks sorted by name.
func (r *Registry) List() []*Task {
	visible := lo.Filter(lo.Values(r.tasks), func(t *Task, _ int) bool { return !t.Hidden })

	sort.Slice(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })

	return visible
}

// Plan returns the order in which Run would execute name and its deps.
func (r *Registry) Plan(name string) ([]string, error) {
	var order []string

	state := make(map[string]bool)

	err := r.walk(name, state, func(t *Task) error {
		order = append(order, t.Name)
		return nil
	})

	return order, err
}

// Run executes name after its dependencies.
func (r *Registry) Run(ctx context.Context, name string) error {
	return r.RunAll(ctx, name)
}

// RunAll executes the named tasks in order. A task shared by several of
// them runs once.
func (r *Registry) RunAll(ctx context.Context, names ...string) error {
	logger := logging.FromContext(ctx)
	state := make(map[string]bool)

	for _, name := range names {
		err := r.walk(name, state, func(t *Task) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if t.Run == nil {
				return nil
			}

			logger.Debug("running task", slog.String("task", t.Name))

			if err := t.Run(ctx); err != nil {
				return fmt.Errorf("task %s: %w", t.Name, err)
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// walk visits name depth-first. state records false while a task is on
// the stack and true once it has been visited.
func (r *Registry) walk(name string, state map[string]bool, visit func(*Task) error) error {
	done, seen := state[name]
	if seen {
		if done {
			return nil
		}

		return fmt.Errorf("%w: %s", ErrCycle, name)
	}

	t, ok := r.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	state[name] = false

	for _, dep := range t.Deps {
		if err := r.walk(dep, state, visit); err != nil {
			if errors.Is(err, ErrCycle) || errors.Is(err, ErrNotFound) {
				return err
			}

			return fmt.Errorf("task %s failed due to its dependency %s: %w", name, dep, err)
		}
	}

	if err := visit(t); err != nil {
		return err
	}

	state[name] = true

	return nil
}
