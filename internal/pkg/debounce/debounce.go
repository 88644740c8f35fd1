package debounce

import (
	"sync"
	"time"
)

// Table colapsa disparos rápidos repetidos para a mesma chave (ticket) em
// uma única execução depois de um período quieto. Um novo disparo para a
// mesma chave cancela o timer em voo e o substitui.
type Table struct {
	mu     sync.Mutex
	wait   time.Duration
	timers map[string]*time.Timer
}

func NewTable(wait time.Duration) *Table {
	if wait <= 0 {
		wait = time.Second
	}
	return &Table{
		wait:   wait,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger agenda fn para rodar depois do período quieto, cancelando
// qualquer agendamento anterior da mesma chave.
func (t *Table) Trigger(key string, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}

	t.timers[key] = time.AfterFunc(t.wait, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
}

// Cancel descarta um agendamento pendente, se existir.
func (t *Table) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// Pending informa se há agendamento em voo para a chave.
func (t *Table) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[key]
	return ok
}

// Stop cancela todos os agendamentos pendentes.
func (t *Table) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
