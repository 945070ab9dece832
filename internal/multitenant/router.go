package multitenant

import (
	"context"
	"strings"
	"sync"

	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EntityCategory classifies every data type. Shared entities (companies,
// users) live in the single shared store; tenant entities (products, product
// images) live in per-company stores.
type EntityCategory string

const (
	CategoryShared EntityCategory = "shared"
	CategoryTenant EntityCategory = "tenant"
)

// SlugFromStorageID recovers the company slug from a storage id.
func SlugFromStorageID(storageID string) (string, bool) {
	if !strings.HasPrefix(storageID, StorageIDPrefix) {
		return "", false
	}
	slug := strings.TrimPrefix(storageID, StorageIDPrefix)
	return slug, slug != ""
}

// Router decides, for every data operation, which physical store to hit.
// Decisions are made fresh on every call from the request context; nothing
// is cached between operations.
type Router struct {
	shared      *gorm.DB
	registry    *Registry
	provisioner *Provisioner

	mu          sync.RWMutex
	deactivated map[string]bool
}

// NewRouter creates a router over the shared store, the storage registry and
// the tenant provisioner.
func NewRouter(shared *gorm.DB, registry *Registry, provisioner *Provisioner) *Router {
	return &Router{
		shared:      shared,
		registry:    registry,
		provisioner: provisioner,
		deactivated: make(map[string]bool),
	}
}

// Route returns the store for an operation on an entity of the given
// category. Shared entities always hit the shared store. Tenant entities hit
// the store named by the request's tenant context, provisioning it on first
// use; with no tenant context the shared store is served instead. That
// fallback is a deliberate fail-open policy so shared-category endpoints
// keep working for requests without a tenant claim; use RouteStrict where an
// operation must not tolerate it.
func (r *Router) Route(category EntityCategory, ctx context.Context) (*gorm.DB, error) {
	if category == CategoryShared {
		return r.shared, nil
	}

	storageID, ok := StorageIDFromContext(ctx)
	if !ok {
		prometheus.RecordRoutingFallback()
		logger.GetLogger().Debug("No tenant context, routing tenant-scoped operation to shared store")
		return r.shared, nil
	}

	return r.tenantStore(storageID)
}

// RouteStrict returns the tenant store for the request context, failing
// closed: an empty tenant context yields ErrNoTenant instead of the shared
// store.
func (r *Router) RouteStrict(ctx context.Context) (*gorm.DB, error) {
	storageID, ok := StorageIDFromContext(ctx)
	if !ok {
		return nil, ErrNoTenant
	}
	return r.tenantStore(storageID)
}

// AllowRelation reports whether entities of the two categories may be
// related. Cross-category relations would span physical stores and are
// structurally forbidden.
func (r *Router) AllowRelation(a, b EntityCategory) bool {
	return a == b
}

// AllowSchemaChange reports whether a schema change for the given category
// may run against the store. Shared-category changes run only on the shared
// store; tenant-category changes run on any tenant store, never the shared
// one.
func (r *Router) AllowSchemaChange(storageID string, category EntityCategory) bool {
	if category == CategoryShared {
		return storageID == SharedStorageID
	}
	return storageID != SharedStorageID
}

// Deactivate stops routing to a tenant's store without deleting it. The
// registry entry is evicted and later Route calls for the tenant fail with
// ErrTenantInactive until Reactivate is called.
func (r *Router) Deactivate(storageID string) {
	r.mu.Lock()
	r.deactivated[storageID] = true
	r.mu.Unlock()
	r.registry.Evict(storageID)
}

// Reactivate allows routing to a previously deactivated tenant again.
func (r *Router) Reactivate(storageID string) {
	r.mu.Lock()
	delete(r.deactivated, storageID)
	r.mu.Unlock()
}

func (r *Router) tenantStore(storageID string) (*gorm.DB, error) {
	r.mu.RLock()
	inactive := r.deactivated[storageID]
	r.mu.RUnlock()
	if inactive {
		return nil, ErrTenantInactive
	}

	slug, ok := SlugFromStorageID(storageID)
	if !ok {
		return nil, ErrNoTenant
	}

	entry, err := r.registry.EnsureRegistered(storageID, func() (*gorm.DB, error) {
		return r.provisioner.Open(slug)
	})
	if err != nil {
		logger.GetLogger().Error("Failed to open tenant store",
			zap.String("storage_id", storageID),
			zap.Error(err))
		return nil, err
	}
	return entry.DB, nil
}
