package memory

import (
	"context"
	"sync"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/pkg/errors"
)

// RunLocker is a process-local ports.RunLocker.
type RunLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ ports.RunLocker = (*RunLocker)(nil)

func NewRunLocker() *RunLocker {
	return &RunLocker{held: make(map[string]bool)}
}

func (l *RunLocker) Acquire(ctx context.Context, resource string) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[resource] {
		return nil, errors.NewLockedError(resource)
	}
	l.held[resource] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, resource)
		return nil
	}, nil
}

// Held reports whether resource is currently locked.
func (l *RunLocker) Held(resource string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[resource]
}
