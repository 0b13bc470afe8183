// Package cleanup runs deferred teardown (the --log-file handle) after the
// command tree returns, including when a command exits with an error.
package cleanup

import (
	"errors"
	"fmt"
	"sync"
)

// Stack runs registered hooks last-in first-out.
type Stack struct {
	mu    sync.Mutex
	names []string
	fns   []func() error
}

var process Stack

// Push adds a hook; nil is ignored.
func (s *Stack) Push(name string, fn func() error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.fns = append(s.fns, fn)
}

// Drain runs and forgets every hook. Errors are joined, not short-circuited.
func (s *Stack) Drain() error {
	s.mu.Lock()
	names, fns := s.names, s.fns
	s.names, s.fns = nil, nil
	s.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Register pushes onto the process-wide stack.
func Register(name string, fn func() error) { process.Push(name, fn) }

// RunAll drains the process-wide stack.
func RunAll() error { return process.Drain() }
