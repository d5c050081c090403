// Package watermark tracks the highest news item id already processed.
package watermark

import (
	"fmt"
	"sync"

	"newsrelay/pkg/logx"
)

// State is the persisted form: {"last_news_id": <int>}.
type State struct {
	LastNewsID int64 `json:"last_news_id"`
}

// Backend persists State. storage.JSONFile[State] implements it.
type Backend interface {
	Load(def State) (State, bool, error)
	Save(State) error
}

// Store holds the watermark in memory and persists every advance.
// The value never decreases.
type Store struct {
	backend Backend
	log     logx.Logger

	mu  sync.RWMutex
	cur int64
}

// Open loads the persisted watermark. A missing file starts at 0.
func Open(backend Backend, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	st, found, err := backend.Load(State{})
	if err != nil {
		return nil, fmt.Errorf("watermark: load: %w", err)
	}
	if st.LastNewsID < 0 {
		return nil, fmt.Errorf("watermark: negative last_news_id %d", st.LastNewsID)
	}
	log.Info("watermark loaded", logx.Int64("last_news_id", st.LastNewsID), logx.Bool("found", found))
	return &Store{backend: backend, log: log, cur: st.LastNewsID}, nil
}

// Get returns the current watermark.
func (s *Store) Get() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Advance raises the watermark to id and persists it. Values not above the
// current watermark are ignored (advanced=false). A persist failure is
// returned but the in-memory value still moves forward, so the running
// process never hands out the same items twice.
func (s *Store) Advance(id int64) (advanced bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= s.cur {
		return false, nil
	}
	prev := s.cur
	s.cur = id
	if err := s.backend.Save(State{LastNewsID: id}); err != nil {
		return true, fmt.Errorf("watermark: persist %d: %w", id, err)
	}
	s.log.Debug("watermark advanced", logx.Int64("from", prev), logx.Int64("to", id))
	return true, nil
}
