package alert

import (
	"sync"
	"time"
)

// State is the process-local alert state of one subject within one
// alert family. It is created lazily on first observation and lost on
// restart.
type State struct {
	LastAlertedRate   float64
	IsRecovering      bool
	SentCritical      bool
	LastCriticalTime  time.Time
	LastRateAlertTime time.Time
	LastRecoveryTime  time.Time
	LastMissedEpoch   uint64
}

// subjectState pairs a State with the lock serializing governor
// evaluation for that subject.
type subjectState struct {
	mu sync.Mutex
	State
}

// stateMap hands out per-subject states, creating them on demand.
type stateMap struct {
	mu     sync.Mutex
	states map[string]*subjectState
}

func newStateMap() *stateMap {
	return &stateMap{states: make(map[string]*subjectState)}
}

func (m *stateMap) get(key string) *subjectState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	if !ok {
		st = &subjectState{}
		m.states[key] = st
	}
	return st
}

func (m *stateMap) reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
}
