package infra

import (
	"sync"
	"time"

	"request-guard/middleware/ratelimit/domain"
)

// DefaultSweepInterval é o intervalo padrão da limpeza periódica.
const DefaultSweepInterval = 5 * time.Minute

// WindowStore é uma janela deslizante exata em memória: guarda os timestamps
// crus de cada chave, com poda lazy a cada acesso e limpeza periódica.
//
// Não há limite de chaves além do sweep: quem gera chaves distintas mais rápido
// que o intervalo de sweep faz a memória crescer.
type WindowStore struct {
	mu         sync.Mutex
	entries    map[domain.Key]*windowEntry
	sweepEvery time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type windowEntry struct {
	timestamps []time.Time
	resetTime  time.Time
	// window usado no último acesso; o sweep poda com ele.
	window time.Duration
}

var _ domain.WindowStore = (*WindowStore)(nil)

type StoreOption func(*WindowStore)

func WithSweepEvery(d time.Duration) StoreOption {
	return func(s *WindowStore) { s.sweepEvery = d }
}

// WithClock substitui time.Now (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *WindowStore) { s.now = now }
}

func NewWindowStore(opts ...StoreOption) *WindowStore {
	s := &WindowStore{
		entries:    make(map[domain.Key]*windowEntry),
		sweepEvery: DefaultSweepInterval,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) SweepEvery() time.Duration { return s.sweepEvery }

// Get retorna a entrada da chave já podada para a janela. Cria se não existir.
func (s *WindowStore) Get(key domain.Key, window time.Duration) domain.WindowEntry {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(key, window, now).snapshot(key)
}

// Increment registra uma requisição agora e estende o resetTime.
func (s *WindowStore) Increment(key domain.Key, window time.Duration) domain.WindowEntry {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.get(key, window, now)
	ent.timestamps = append(ent.timestamps, now)
	if reset := now.Add(window); reset.After(ent.resetTime) {
		ent.resetTime = reset
	}
	return ent.snapshot(key)
}

// Admit poda, compara com max e, havendo vaga, registra a requisição agora,
// tudo sob o mesmo lock. Negado, a entrada volta sem mudança além da poda.
func (s *WindowStore) Admit(key domain.Key, window time.Duration, max int) (domain.WindowEntry, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.get(key, window, now)
	if len(ent.timestamps) >= max {
		return ent.snapshot(key), false
	}
	ent.timestamps = append(ent.timestamps, now)
	if reset := now.Add(window); reset.After(ent.resetTime) {
		ent.resetTime = reset
	}
	return ent.snapshot(key), true
}

// Reset apaga a chave (override administrativo).
func (s *WindowStore) Reset(key domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// ResetAll apaga todas as chaves.
func (s *WindowStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.Key]*windowEntry)
}

// get deve ser chamado com s.mu travado.
func (s *WindowStore) get(key domain.Key, window time.Duration, now time.Time) *windowEntry {
	ent, ok := s.entries[key]
	if !ok {
		ent = &windowEntry{resetTime: now.Add(window), window: window}
		s.entries[key] = ent
		return ent
	}
	ent.window = window
	ent.prune(now.Add(-window))
	return ent
}

// prune remove timestamps <= cutoff. Os timestamps estão em ordem de chegada.
func (e *windowEntry) prune(cutoff time.Time) {
	i := 0
	for i < len(e.timestamps) && !e.timestamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(e.timestamps, e.timestamps[i:])
	clear(e.timestamps[n:])
	e.timestamps = e.timestamps[:n]
}

func (e *windowEntry) snapshot(key domain.Key) domain.WindowEntry {
	ts := make([]time.Time, len(e.timestamps))
	copy(ts, e.timestamps)
	return domain.WindowEntry{Key: key, Timestamps: ts, ResetTime: e.resetTime}
}

// Sweep remove entradas com resetTime vencido e sem timestamps vivos.
// resetTime é só indicativo: entrada com timestamp dentro da janela nunca sai.
func (s *WindowStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if !now.After(ent.resetTime) {
			continue
		}
		ent.prune(now.Add(-ent.window))
		if len(ent.timestamps) == 0 {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Stats é calculado a cada chamada, O(n) sobre as chaves.
func (s *WindowStore) Stats() domain.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.StoreStats{KeyCount: len(s.entries)}
	for _, ent := range s.entries {
		st.TotalTrackedRequests += len(ent.timestamps)
	}
	return st
}

// StartJanitor inicia uma goroutine que roda Sweep periodicamente.
// Pare cancelando o contexto ou chamando Close.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	if s.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Close para o janitor. Pode ser chamado mais de uma vez.
func (s *WindowStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
