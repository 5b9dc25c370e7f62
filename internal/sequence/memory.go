package sequence

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and when running
// without a database. Versioning is reduced to keeping the latest state
// per instrument plus the full audit slices.
type MemoryStore struct {
	mu          sync.Mutex
	active      map[string]State
	transitions []Transition
	completions []Completion
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{active: make(map[string]State)}
}

func (m *MemoryStore) SaveState(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[state.Instrument] = *state
	return nil
}

func (m *MemoryStore) LoadActiveStates(_ context.Context) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) AppendTransition(_ context.Context, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *MemoryStore) AppendCompletion(_ context.Context, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, c)
	return nil
}

func (m *MemoryStore) CompletionRate(_ context.Context, instrument string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total, completed := 0, 0
	for _, c := range m.completions {
		if c.Instrument != instrument {
			continue
		}
		total++
		if c.MaxPhaseReached >= PhaseRetracement {
			completed++
		}
	}
	if total == 0 {
		return 50.0, nil
	}
	return float64(completed) / float64(total) * 100, nil
}

// Transitions returns a copy of the recorded transitions.
func (m *MemoryStore) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// Completions returns a copy of the recorded completions.
func (m *MemoryStore) Completions() []Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Completion, len(m.completions))
	copy(out, m.completions)
	return out
}
