package infra

import (
	"io"
	"sync"
)

// Nomes fixos dos handles compartilhados do processo.
const (
	SharedStoreKey    = "request-guard.ratelimit.store"
	SharedMonitorKey  = "request-guard.ratelimit.monitor"
	SharedEventLogKey = "request-guard.security.events"
)

// registry guarda as instâncias process-wide por nome. Reinicializar um pacote
// (ou montar o middleware duas vezes) reaproveita a mesma instância em vez de
// criar um segundo store inconsistente.
var registry = struct {
	mu    sync.Mutex
	items map[string]any
}{items: make(map[string]any)}

// Shared retorna a instância registrada em name, criando com factory na primeira vez.
func Shared[T any](name string, factory func() T) T {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if v, ok := registry.items[name]; ok {
		if t, ok := v.(T); ok {
			return t
		}
	}
	t := factory()
	registry.items[name] = t
	return t
}

// Destroy remove (e fecha, se for io.Closer) a instância registrada em name.
func Destroy(name string) {
	registry.mu.Lock()
	v, ok := registry.items[name]
	delete(registry.items, name)
	registry.mu.Unlock()

	if c, ok2 := v.(io.Closer); ok && ok2 {
		_ = c.Close()
	}
}

// DestroyAll limpa o registro inteiro (isolamento de testes).
func DestroyAll() {
	registry.mu.Lock()
	names := make([]string, 0, len(registry.items))
	for k := range registry.items {
		names = append(names, k)
	}
	registry.mu.Unlock()

	for _, n := range names {
		Destroy(n)
	}
}

func SharedStore() *WindowStore {
	return Shared(SharedStoreKey, func() *WindowStore { return NewWindowStore() })
}

func SharedMonitor() *Monitor {
	return Shared(SharedMonitorKey, func() *Monitor { return NewMonitor() })
}

func SharedEventLog() *EventLog {
	return Shared(SharedEventLogKey, func() *EventLog { return NewEventLog() })
}
