// Package registry tracks the stores connected to the current session and
// which one is selected.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/xenodash/internal/model"
)

// ErrNoStores is returned by List when the account has no stores yet. It is a
// condition for the caller to render, not a transport failure.
var ErrNoStores = errors.New("no stores connected")

// ErrUnknownStore is returned by SelectID for an id not in the cached list.
var ErrUnknownStore = errors.New("unknown store")

// Lister fetches the store list for a token.
type Lister interface {
	ListStores(ctx context.Context, token string) ([]model.Store, error)
}

// Registry caches the store list and the current selection.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	lister Lister

	mu      sync.RWMutex
	stores  []model.Store
	current *model.Store
}

// New creates an empty registry.
func New(lister Lister) *Registry {
	return &Registry{lister: lister}
}

// List issues one fetch of the store list and caches it in backend order.
// An empty list returns ErrNoStores alongside the (empty) result.
//
// A selection that is no longer present in the new list is cleared.
func (r *Registry) List(ctx context.Context, token string) ([]model.Store, error) {
	stores, err := r.lister.ListStores(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	r.mu.Lock()
	r.stores = append([]model.Store(nil), stores...)
	if r.current != nil && indexOf(r.stores, r.current.ID) < 0 {
		r.current = nil
	}
	r.mu.Unlock()

	if len(stores) == 0 {
		return stores, ErrNoStores
	}
	return r.Stores(), nil
}

// Stores returns a copy of the cached list.
func (r *Registry) Stores() []model.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Store(nil), r.stores...)
}

// Find returns the cached store with the given id.
func (r *Registry) Find(id int) (model.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.stores, id); i >= 0 {
		return r.stores[i], true
	}
	return model.Store{}, false
}

// Select makes store current. It reports whether the selection changed;
// reselecting the same id is a no-op and dependent data need not be
// re-fetched.
func (r *Registry) Select(store model.Store) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.ID == store.ID {
		return false
	}
	s := store
	r.current = &s
	return true
}

// SelectID selects a store from the cached list by id.
func (r *Registry) SelectID(id int) (model.Store, bool, error) {
	store, ok := r.Find(id)
	if !ok {
		return model.Store{}, false, fmt.Errorf("%w: %d", ErrUnknownStore, id)
	}
	return store, r.Select(store), nil
}

// Current returns the selected store.
func (r *Registry) Current() (model.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return model.Store{}, false
	}
	return *r.current, true
}

// Add appends a newly created store to the cached list. A store whose id is
// already cached replaces the cached copy in place.
func (r *Registry) Add(store model.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := indexOf(r.stores, store.ID); i >= 0 {
		r.stores[i] = store
		return
	}
	r.stores = append(r.stores, store)
}

// Reset drops the cached list and the selection.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = nil
	r.current = nil
}

func indexOf(stores []model.Store, id int) int {
	for i, s := range stores {
		if s.ID == id {
			return i
		}
	}
	return -1
}
