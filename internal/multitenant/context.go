package multitenant

import "context"

// storageIDKey is a private type so no other package can collide with
// or read the slot directly.
type storageIDKey struct{}

// WithStorageID returns a context carrying the active tenant storage id.
// The value rides on the request context, so it is visible only to the
// call chain of a single request and disappears when the request ends.
func WithStorageID(ctx context.Context, storageID string) context.Context {
	return context.WithValue(ctx, storageIDKey{}, storageID)
}

// StorageIDFromContext retrieves the active tenant storage id.
// Returns "", false when no tenant context is set.
func StorageIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(storageIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ClearStorageID returns a context with no active tenant. Clearing an
// already-clear context is a no-op.
func ClearStorageID(ctx context.Context) context.Context {
	if _, ok := StorageIDFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, storageIDKey{}, "")
}
