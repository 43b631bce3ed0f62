package einvoice

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Locker serialises work on one invoice. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, id uuid.UUID) (func(), error)
}

type LockerFunc func(ctx context.Context, id uuid.UUID) (func(), error)

func (f LockerFunc) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	return f(ctx, id)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker is an in-process mutex per invoice id. Waiting honours ctx.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[uuid.UUID]*lockEntry)}
}

func (l *KeyedLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-e.ch
			l.release(id, e)
		})
	}, nil
}

func (l *KeyedLocker) release(id uuid.UUID, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// Chain acquires every locker in order and releases them in reverse.
func Chain(lockers ...Locker) Locker {
	return LockerFunc(func(ctx context.Context, id uuid.UUID) (func(), error) {
		unlocks := make([]func(), 0, len(lockers))

		release := func() {
			for i := len(unlocks) - 1; i >= 0; i-- {
				unlocks[i]()
			}
		}

		for i, l := range lockers {
			unlock, err := l.Lock(ctx, id)
			if err != nil {
				release()
				return nil, fmt.Errorf("acquiring lock %d of invoice %s: %w", i, id, err)
			}

			unlocks = append(unlocks, unlock)
		}

		return release, nil
	})
}
