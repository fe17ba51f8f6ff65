package conversations

import (
	"context"
	"sync"
)

// TurnLocker serialises turns of the same conversation. Different ids never contend.
type TurnLocker struct {
	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	ch   chan struct{}
	refs int
}

func NewTurnLocker() *TurnLocker {
	return &TurnLocker{locks: make(map[string]*turnLock)}
}

// Lock blocks until the caller holds id or ctx ends. The returned func releases the lock.
func (l *TurnLocker) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &turnLock{ch: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.drop(id, e)
			})
		}, nil
	case <-ctx.Done():
		l.drop(id, e)
		return nil, ctx.Err()
	}
}

func (l *TurnLocker) drop(id string, e *turnLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

// Len returns how many ids are currently locked or awaited.
func (l *TurnLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
