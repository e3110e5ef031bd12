package oracle

import (
	"context"
	"fmt"
	"sync"
)

// Stub is an in-memory Client for tests and local runs. Each task type is
// served by a registered handler; unhandled tasks fail with an *Error.
type Stub struct {
	mu       sync.Mutex
	handlers map[TaskType]func(in any, out any) error
	calls    map[TaskType]int
}

// NewStub creates an empty stub oracle.
func NewStub() *Stub {
	return &Stub{
		handlers: make(map[TaskType]func(in any, out any) error),
		calls:    make(map[TaskType]int),
	}
}

// Handle registers fn as the handler for task.
func (s *Stub) Handle(task TaskType, fn func(in any, out any) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[task] = fn
}

// Calls returns how often task has been judged.
func (s *Stub) Calls(task TaskType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

// Judge dispatches to the registered handler for task.
func (s *Stub) Judge(ctx context.Context, task TaskType, in any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	fn, ok := s.handlers[task]
	s.calls[task]++
	s.mu.Unlock()

	if !ok {
		return WrapError(task, fmt.Errorf("no stub handler registered"))
	}
	if err := fn(in, out); err != nil {
		return WrapError(task, err)
	}
	return nil
}
