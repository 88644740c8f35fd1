package realtime

import (
	"context"
	"sync"
)

// MemoryEmitter acumula eventos por tenant; serve o modo sem Redis e os testes.
type MemoryEmitter struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{events: make(map[string][]Event)}
}

func (e *MemoryEmitter) Emit(ctx context.Context, companyID string, event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events[companyID] = append(e.events[companyID], event)
	return nil
}

// Events devolve uma cópia dos eventos emitidos para o tenant.
func (e *MemoryEmitter) Events(companyID string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events[companyID]))
	copy(out, e.events[companyID])
	return out
}
