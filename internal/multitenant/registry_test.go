package multitenant

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testFactory(t *testing.T) func() (*gorm.DB, error) {
	t.Helper()
	dir := t.TempDir()
	return func() (*gorm.DB, error) {
		return openStore(filepath.Join(dir, "store.sqlite3"))
	}
}

func TestResolveIsPureAndDeterministic(t *testing.T) {
	assert.Equal(t, "tenant_acme", Resolve("acme"))
	assert.Equal(t, "tenant_acme", Resolve("acme"))
	assert.Equal(t, "tenant_other", Resolve("other"))

	// Resolution is independent of provisioning or registration state.
	r := NewRegistry()
	_, err := r.EnsureRegistered(Resolve("acme"), testFactory(t))
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", Resolve("acme"))
}

func TestSlugFromStorageID(t *testing.T) {
	slug, ok := SlugFromStorageID("tenant_acme")
	require.True(t, ok)
	assert.Equal(t, "acme", slug)

	_, ok = SlugFromStorageID("default")
	assert.False(t, ok)

	_, ok = SlugFromStorageID("tenant_")
	assert.False(t, ok)
}

func TestEnsureRegisteredIdempotent(t *testing.T) {
	r := NewRegistry()
	var calls int32
	factory := testFactory(t)
	counted := func() (*gorm.DB, error) {
		atomic.AddInt32(&calls, 1)
		return factory()
	}

	first, err := r.EnsureRegistered("tenant_acme", counted)
	require.NoError(t, err)
	second, err := r.EnsureRegistered("tenant_acme", counted)
	require.NoError(t, err)

	assert.Same(t, first, second, "the installed entry is observed, never replaced")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, r.Len())
}

func TestEnsureRegisteredConcurrent(t *testing.T) {
	const callers = 32

	r := NewRegistry()
	var calls int32
	factory := testFactory(t)
	counted := func() (*gorm.DB, error) {
		atomic.AddInt32(&calls, 1)
		return factory()
	}

	var wg sync.WaitGroup
	entries := make([]*Entry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e, err := r.EnsureRegistered("tenant_acme", counted)
			assert.NoError(t, err)
			entries[n] = e
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "exactly one construction for the same unseen id")
	for _, e := range entries {
		assert.Same(t, entries[0], e)
	}
}

func TestEnsureRegisteredFactoryFailure(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("connection refused")

	_, err := r.EnsureRegistered("tenant_acme", func() (*gorm.DB, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// No partial entry is left behind; a later call can retry.
	_, ok := r.Get("tenant_acme")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	entry, err := r.EnsureRegistered("tenant_acme", testFactory(t))
	require.NoError(t, err)
	assert.NotNil(t, entry.DB)
}

func TestEvict(t *testing.T) {
	r := NewRegistry()
	_, err := r.EnsureRegistered("tenant_acme", testFactory(t))
	require.NoError(t, err)

	assert.True(t, r.Evict("tenant_acme"))
	_, ok := r.Get("tenant_acme")
	assert.False(t, ok)

	// Evicting an absent entry reports false.
	assert.False(t, r.Evict("tenant_acme"))
}
