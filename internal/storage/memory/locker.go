package memory

import (
	"context"
	"sync"
)

// Locker é o mutex por chave usado quando Redis está desabilitado.
// Cobre apenas o processo local, o que basta no modo degradado onde todo o
// processamento é síncrono no mesmo processo.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

func (l *Locker) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[key] = m
	return m
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func() error) error {
	m := l.lockFor(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
