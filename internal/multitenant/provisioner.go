package multitenant

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// schemaMarkerTable records that the tenant schema was applied. Its presence
// is the persistent readiness flag: a store file that exists without the
// marker is treated as half-initialized, never as ready.
const schemaMarkerTable = "tenant_schema_info"

// Provisioner lazily creates tenant stores and applies their schema.
// Provision is idempotent and safe for concurrent callers; calls for the
// same slug serialize on a per-slug lock while distinct slugs proceed in
// parallel.
type Provisioner struct {
	storeDir   string
	schemaPath string

	// fallback creates the tenant tables when the schema script is absent.
	// It must produce the same end state as the script.
	fallback func(*gorm.DB) error

	mu    sync.Mutex
	ready map[string]bool
	locks map[string]*sync.Mutex
}

// NewProvisioner creates a provisioner rooted at storeDir. schemaPath points
// at the versioned DDL script; fallback is used when the script is missing.
func NewProvisioner(storeDir, schemaPath string, fallback func(*gorm.DB) error) *Provisioner {
	return &Provisioner{
		storeDir:   storeDir,
		schemaPath: schemaPath,
		fallback:   fallback,
		ready:      make(map[string]bool),
		locks:      make(map[string]*sync.Mutex),
	}
}

// StorePath returns the physical location of a tenant's store. The mapping
// is stable; backup and inspection tooling depends on it.
func (p *Provisioner) StorePath(slug string) string {
	return filepath.Join(p.storeDir, slug+"_db.sqlite3")
}

// Ready reports whether the tenant's store exists and its schema has been
// applied successfully.
func (p *Provisioner) Ready(slug string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready[slug]
}

// Provision creates the tenant's physical store and applies its schema if
// absent, returning the tenant's storage id. Already-provisioned stores
// return immediately without re-applying schema. A create-stage failure
// leaves nothing behind; a schema-stage failure leaves the store file
// present but not ready, so a later call retries the schema.
func (p *Provisioner) Provision(slug string) (string, error) {
	storageID := Resolve(slug)
	log := logger.GetLogger()

	if p.Ready(slug) {
		return storageID, nil
	}

	lock := p.lockFor(slug)
	lock.Lock()
	defer lock.Unlock()

	// A concurrent caller may have finished while we waited.
	if p.Ready(slug) {
		return storageID, nil
	}

	path := p.StorePath(slug)

	if err := os.MkdirAll(p.storeDir, 0o755); err != nil {
		prometheus.RecordProvision(StageCreate, "error")
		return "", &ProvisionError{Slug: slug, Stage: StageCreate, Err: err}
	}

	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created = true
	}

	db, err := openStore(path)
	if err != nil {
		if created {
			// Connecting never touched the disk; make sure no empty file
			// is left looking like a store.
			os.Remove(path)
		}
		prometheus.RecordProvision(StageCreate, "error")
		return "", &ProvisionError{Slug: slug, Stage: StageCreate, Err: err}
	}

	applied, err := markerPresent(db)
	if err != nil {
		closeStore(db)
		prometheus.RecordProvision(StageSchema, "error")
		return "", &ProvisionError{Slug: slug, Stage: StageSchema, Err: err}
	}

	if !applied {
		if err := p.applySchema(db); err != nil {
			closeStore(db)
			prometheus.RecordProvision(StageSchema, "error")
			return "", &ProvisionError{Slug: slug, Stage: StageSchema, Err: err}
		}
		prometheus.RecordProvision(StageSchema, "ok")
		log.Info("Tenant store provisioned",
			zap.String("slug", slug),
			zap.String("storage_id", storageID),
			zap.String("path", path),
			zap.Bool("created", created))
	}

	closeStore(db)

	p.mu.Lock()
	p.ready[slug] = true
	p.mu.Unlock()

	return storageID, nil
}

// Open returns a live connection to a ready tenant store, provisioning it
// first when needed. This is the factory the registry uses on first use.
func (p *Provisioner) Open(slug string) (*gorm.DB, error) {
	if _, err := p.Provision(slug); err != nil {
		return nil, err
	}
	return openStore(p.StorePath(slug))
}

// applySchema runs the DDL script, or the fallback when no script exists,
// then writes the schema marker. The script uses IF NOT EXISTS semantics so
// re-running it over a half-initialized store converges to the same state.
func (p *Provisioner) applySchema(db *gorm.DB) error {
	script, err := os.ReadFile(p.schemaPath)
	switch {
	case err == nil:
		for _, stmt := range splitStatements(string(script)) {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("exec schema statement: %w", err)
			}
		}
	case os.IsNotExist(err):
		if p.fallback == nil {
			return fmt.Errorf("schema script %s not found and no fallback configured", p.schemaPath)
		}
		logger.GetLogger().Warn("Schema script not found, creating tenant tables from models",
			zap.String("schema_path", p.schemaPath))
		if err := p.fallback(db); err != nil {
			return fmt.Errorf("fallback table creation: %w", err)
		}
	default:
		return fmt.Errorf("read schema script: %w", err)
	}

	if err := db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY CHECK (id = 1), applied_at DATETIME NOT NULL)",
		schemaMarkerTable)).Error; err != nil {
		return fmt.Errorf("create schema marker: %w", err)
	}
	if err := db.Exec(fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (id, applied_at) VALUES (1, CURRENT_TIMESTAMP)",
		schemaMarkerTable)).Error; err != nil {
		return fmt.Errorf("write schema marker: %w", err)
	}
	return nil
}

func (p *Provisioner) lockFor(slug string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[slug]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[slug] = lock
	}
	return lock
}

func openStore(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func closeStore(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func markerPresent(db *gorm.DB) (bool, error) {
	var count int64
	err := db.Raw(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		schemaMarkerTable).Scan(&count).Error
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	err = db.Raw(fmt.Sprintf("SELECT count(*) FROM %s", schemaMarkerTable)).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, raw := range strings.Split(script, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" || commentOnly(stmt) {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
