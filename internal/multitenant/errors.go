package multitenant

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTenant is returned by RouteStrict when the request carries no
	// tenant context.
	ErrNoTenant = errors.New("no tenant in context")

	// ErrTenantInactive is returned when routing is attempted for a
	// deactivated tenant.
	ErrTenantInactive = errors.New("tenant is deactivated")

	// ErrStoreNotReady is returned when a tenant store exists on disk but
	// its schema has not been applied successfully.
	ErrStoreNotReady = errors.New("tenant store not ready")

	// ErrEntryExists is returned by the registry when an installation
	// would overwrite an already-installed entry.
	ErrEntryExists = errors.New("storage entry already installed")
)

// Provisioning stages, used to tell a failed store creation apart from a
// failed schema application. A create failure means nothing was left on
// disk; a schema failure means the store file exists but is not ready.
const (
	StageCreate = "create"
	StageSchema = "schema"
)

// ProvisionError reports a tenant store provisioning failure.
type ProvisionError struct {
	Slug  string
	Stage string
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision tenant %q: %s stage: %v", e.Slug, e.Stage, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStoreNotReady) hold for schema-stage failures:
// the store file exists but its schema was never applied successfully.
func (e *ProvisionError) Is(target error) bool {
	return target == ErrStoreNotReady && e.Stage == StageSchema
}
