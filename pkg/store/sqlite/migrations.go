package sqlite

import (
	"context"

	"github.com/kamitools/kami/pkg/registry"
)

// Forward-only migrations. The schema_version counter gates which steps
// still apply; downgrade is deliberately unsupported.
var migrations = []string{
	// v1: the tool catalog.
	`CREATE TABLE IF NOT EXISTS tools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		wasm TEXT NOT NULL,
		install_path TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		security_policy TEXT NOT NULL,
		arguments TEXT NOT NULL DEFAULT '[]',
		wasm_sha256 TEXT,
		pinned_version TEXT,
		updated_at TEXT
	)`,
	// v2: Ed25519 signing metadata.
	`ALTER TABLE tools ADD COLUMN signature TEXT`,
	`ALTER TABLE tools ADD COLUMN signer_public_key TEXT`,
}

// migrationVersions maps each statement above to the schema version it
// brings the database to.
var migrationVersions = []int{1, 2, 2}

func (r *Repository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return registry.StorageError("migrate", err)
	}

	version, err := r.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for i, stmt := range migrations {
		if migrationVersions[i] <= version {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return registry.StorageError("migrate", err)
		}
	}

	target := migrationVersions[len(migrationVersions)-1]
	if version == 0 {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO schema_version (version) VALUES (?)`, target); err != nil {
			return registry.StorageError("migrate", err)
		}
	} else if version < target {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE schema_version SET version = ?`, target); err != nil {
			return registry.StorageError("migrate", err)
		}
	}
	return nil
}

func (r *Repository) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, registry.StorageError("schema_version", err)
	}
	return version, nil
}
