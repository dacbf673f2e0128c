package services

import (
	"sync"

	"github.com/marketplacekit/ghl-adapter/internal/models"
)

// InstallationRegistry is the authoritative store of per-tenant OAuth
// credentials. Implementations must serialize concurrent writes to the same
// tenant id; reads never perform I/O on the memory backend.
type InstallationRegistry interface {
	// Put inserts or overwrites the record for its tenant id.
	Put(record *models.Installation) error
	// Get retrieves a copy of the record, or (nil, nil) when absent.
	Get(tenantID string) (*models.Installation, error)
	// Exists reports whether a record is stored for the tenant.
	Exists(tenantID string) bool
	// Delete removes the record for the tenant. Only the explicit
	// uninstall path calls this; records are never time-evicted.
	Delete(tenantID string) error
	// AllTenantIDs lists every stored tenant id, for diagnostics.
	AllTenantIDs() []string
}

// memoryRegistry is the in-process implementation backing a single
// authoritative store.
type memoryRegistry struct {
	mu      sync.RWMutex
	records map[string]models.Installation
}

// NewMemoryRegistry creates an empty in-memory installation registry.
func NewMemoryRegistry() InstallationRegistry {
	return &memoryRegistry{records: make(map[string]models.Installation)}
}

func (r *memoryRegistry) Put(record *models.Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.TenantID] = *record
	return nil
}

func (r *memoryRegistry) Get(tenantID string) (*models.Installation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[tenantID]
	if !ok {
		return nil, nil
	}
	// Copy out so callers cannot mutate stored state without Put.
	return &record, nil
}

func (r *memoryRegistry) Exists(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[tenantID]
	return ok
}

func (r *memoryRegistry) Delete(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, tenantID)
	return nil
}

func (r *memoryRegistry) AllTenantIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids
}
