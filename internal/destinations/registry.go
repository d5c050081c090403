// Package destinations keeps the set of chats that receive broadcasts.
package destinations

import (
	"fmt"
	"slices"
	"sync"

	"newsrelay/pkg/logx"
)

// Backend persists the chat id list. storage.JSONFile[[]int64] implements it.
type Backend interface {
	Load(def []int64) ([]int64, bool, error)
	Save([]int64) error
}

// Registry is the destination set. It is written by the update dispatcher
// and read by the poll loop; readers get a copy.
type Registry struct {
	backend Backend
	log     logx.Logger

	mu  sync.RWMutex
	ids []int64 // insertion order, no duplicates
}

// Open loads the persisted set. A missing file yields an empty set.
// Duplicates in the file are collapsed.
func Open(backend Backend, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	ids, found, err := backend.Load([]int64{})
	if err != nil {
		return nil, fmt.Errorf("destinations: load: %w", err)
	}
	r := &Registry{backend: backend, log: log}
	for _, id := range ids {
		if !slices.Contains(r.ids, id) {
			r.ids = append(r.ids, id)
		}
	}
	log.Info("destinations loaded", logx.Int("count", len(r.ids)), logx.Bool("found", found))
	return r, nil
}

// Add registers id. It reports false if id was already present; the file
// is written only on an actual change.
func (r *Registry) Add(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.ids, id) {
		return false, nil
	}
	r.ids = append(r.ids, id)
	return true, r.persistLocked()
}

// Remove unregisters id. It reports false if id was not present.
func (r *Registry) Remove(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.ids, id)
	if i < 0 {
		return false, nil
	}
	r.ids = slices.Delete(r.ids, i, i+1)
	return true, r.persistLocked()
}

func (r *Registry) Contains(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.ids, id)
}

// List returns a snapshot of the registered ids in insertion order.
func (r *Registry) List() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.ids)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

func (r *Registry) persistLocked() error {
	if err := r.backend.Save(slices.Clone(r.ids)); err != nil {
		return fmt.Errorf("destinations: persist: %w", err)
	}
	return nil
}
