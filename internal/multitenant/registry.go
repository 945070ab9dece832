package multitenant

import (
	"sync"
	"time"

	"storefront-service/prometheus"

	"gorm.io/gorm"
)

// StorageIDPrefix is prepended to a company slug to form its storage id.
// The mapping is part of the on-disk contract and never changes.
const StorageIDPrefix = "tenant_"

// SharedStorageID identifies the shared store holding identity data.
const SharedStorageID = "default"

// Resolve maps a company slug to its storage id. Pure and deterministic,
// independent of whether the store has been provisioned.
func Resolve(slug string) string {
	return StorageIDPrefix + slug
}

// Entry is a live storage record owned by the Registry.
type Entry struct {
	StorageID string
	DB        *gorm.DB
	CreatedAt time.Time
}

// Registry maps storage ids to live connection handles. It is the only
// component that creates or evicts entries; installation is insert-if-absent
// and an installed entry is never overwritten.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// locks serializes construction per storage id so concurrent first use
	// of one tenant blocks only that tenant.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Get returns the installed entry for a storage id, if any.
func (r *Registry) Get(storageID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[storageID]
	return e, ok
}

// EnsureRegistered returns the entry for storageID, invoking factory to
// construct the connection when no entry exists. Concurrent callers for the
// same unseen id serialize on a per-id lock: exactly one factory call runs,
// the rest observe its result. A factory failure leaves the registry
// unchanged so a later call can retry.
func (r *Registry) EnsureRegistered(storageID string, factory func() (*gorm.DB, error)) (*Entry, error) {
	if e, ok := r.Get(storageID); ok {
		return e, nil
	}

	lock := r.lockFor(storageID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have installed the entry while we waited.
	if e, ok := r.Get(storageID); ok {
		return e, nil
	}

	db, err := factory()
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		StorageID: storageID,
		DB:        db,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[storageID]; ok {
		// Should be unreachable while the per-id lock is held; keep the
		// installed entry rather than overwrite it.
		return existing, ErrEntryExists
	}
	r.entries[storageID] = entry
	prometheus.ActiveTenantStoresGauge.Inc()
	return entry, nil
}

// Evict removes an entry and closes its underlying connection. Used when a
// company is deactivated: routing stops without touching the store on disk.
func (r *Registry) Evict(storageID string) bool {
	r.mu.Lock()
	e, ok := r.entries[storageID]
	if ok {
		delete(r.entries, storageID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	prometheus.ActiveTenantStoresGauge.Dec()
	if sqlDB, err := e.DB.DB(); err == nil {
		sqlDB.Close()
	}
	return true
}

// Keys returns the storage ids of all installed entries.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of installed entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) lockFor(storageID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.locks[storageID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[storageID] = lock
	}
	return lock
}
