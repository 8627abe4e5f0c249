// Package postgres persists the tool catalog in PostgreSQL through the
// registry port, for deployments sharing one catalog across several
// KAMI instances.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/types"
)

// Repository is the PostgreSQL adapter of registry.ToolRepository.
type Repository struct {
	db *sql.DB
}

// Open connects to the database at dsn and migrates the schema.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, registry.StorageError("open", err)
	}
	r := New(db)
	if err := r.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing handle without migrating. Tests inject a mock
// here.
func New(db *sql.DB) *Repository { return &Repository{db: db} }

// Close releases the database handle.
func (r *Repository) Close() error { return r.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS tools (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	wasm TEXT NOT NULL,
	install_path TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	security_policy JSONB NOT NULL,
	arguments JSONB NOT NULL DEFAULT '[]',
	wasm_sha256 TEXT,
	pinned_version TEXT,
	updated_at TEXT,
	signature TEXT,
	signer_public_key TEXT
);
`

// Migrate creates the schema when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return registry.StorageError("migrate", err)
	}
	return nil
}

const selectColumns = `id, name, version, description, wasm, install_path, enabled,
	security_policy, arguments, wasm_sha256, pinned_version, updated_at,
	signature, signer_public_key`

// FindByID implements registry.ToolRepository.
func (r *Repository) FindByID(ctx context.Context, id types.ToolID) (*types.Tool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM tools WHERE id = $1`, id.String())
	tool, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tool, nil
}

// FindAll implements registry.ToolRepository.
func (r *Repository) FindAll(ctx context.Context, query registry.Query) ([]types.Tool, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + selectColumns + ` FROM tools`)
	var (
		clauses []string
		args    []any
	)
	if query.NameFilter != "" {
		args = append(args, "%"+query.NameFilter+"%")
		clauses = append(clauses, fmt.Sprintf("name LIKE $%d", len(args)))
	}
	if query.EnabledOnly {
		clauses = append(clauses, "enabled = TRUE")
	}
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	sb.WriteString(" ORDER BY id")
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if query.Offset > 0 {
		args = append(args, query.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, registry.StorageError("find_all", err)
	}
	defer func() { _ = rows.Close() }()

	var tools []types.Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *tool)
	}
	if err := rows.Err(); err != nil {
		return nil, registry.StorageError("find_all", err)
	}
	return tools, nil
}

// Insert implements registry.ToolRepository.
func (r *Repository) Insert(ctx context.Context, tool *types.Tool) error {
	policyJSON, argsJSON, err := encodeTool(tool)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tools (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tool.Manifest.ID.String(), tool.Manifest.Name, tool.Manifest.Version.String(),
		tool.Manifest.Description, tool.Manifest.Wasm, tool.InstallPath, tool.Enabled,
		policyJSON, argsJSON,
		nullable(tool.Manifest.WasmSHA256), nullable(tool.PinnedVersion),
		nullable(tool.UpdatedAt), nullable(tool.Manifest.Signature),
		nullable(tool.Manifest.SignerPublicKey))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: %s", registry.ErrConflict, tool.Manifest.ID)
		}
		return registry.StorageError("insert", err)
	}
	return nil
}

// Update implements registry.ToolRepository.
func (r *Repository) Update(ctx context.Context, tool *types.Tool) error {
	policyJSON, argsJSON, err := encodeTool(tool)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tools SET name = $1, version = $2, description = $3, wasm = $4,
			install_path = $5, enabled = $6, security_policy = $7, arguments = $8,
			wasm_sha256 = $9, pinned_version = $10, updated_at = $11,
			signature = $12, signer_public_key = $13
		WHERE id = $14`,
		tool.Manifest.Name, tool.Manifest.Version.String(), tool.Manifest.Description,
		tool.Manifest.Wasm, tool.InstallPath, tool.Enabled, policyJSON, argsJSON,
		nullable(tool.Manifest.WasmSHA256), nullable(tool.PinnedVersion),
		nullable(tool.UpdatedAt), nullable(tool.Manifest.Signature),
		nullable(tool.Manifest.SignerPublicKey),
		tool.Manifest.ID.String())
	if err != nil {
		return registry.StorageError("update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return registry.StorageError("update", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, tool.Manifest.ID)
	}
	return nil
}

// Delete implements registry.ToolRepository.
func (r *Repository) Delete(ctx context.Context, id types.ToolID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id.String())
	if err != nil {
		return false, registry.StorageError("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, registry.StorageError("delete", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(row rowScanner) (*types.Tool, error) {
	var (
		id, name, version, description, wasm, installPath string
		enabled                                           bool
		policyJSON, argsJSON                              []byte
		sha256Hex, pinned, updatedAt, sig, signerKey      sql.NullString
	)
	err := row.Scan(&id, &name, &version, &description, &wasm, &installPath,
		&enabled, &policyJSON, &argsJSON, &sha256Hex, &pinned, &updatedAt, &sig, &signerKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, registry.StorageError("scan", err)
	}

	toolID, err := types.ParseToolID(id)
	if err != nil {
		return nil, registry.CorruptionError(id, err)
	}
	toolVersion, err := types.ParseToolVersion(version)
	if err != nil {
		return nil, registry.CorruptionError(id, err)
	}
	var policy types.SecurityPolicy
	if err := json.Unmarshal(policyJSON, &policy); err != nil {
		return nil, registry.CorruptionError(id, err)
	}
	var arguments []types.ToolArgument
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &arguments); err != nil {
			return nil, registry.CorruptionError(id, err)
		}
	}

	return &types.Tool{
		Manifest: types.ToolManifest{
			ID:              toolID,
			Name:            name,
			Version:         toolVersion,
			Wasm:            wasm,
			Description:     description,
			Arguments:       arguments,
			Security:        policy,
			WasmSHA256:      sha256Hex.String,
			Signature:       sig.String,
			SignerPublicKey: signerKey.String,
		},
		InstallPath:   installPath,
		Enabled:       enabled,
		PinnedVersion: pinned.String,
		UpdatedAt:     updatedAt.String,
	}, nil
}

func encodeTool(tool *types.Tool) ([]byte, []byte, error) {
	policyJSON, err := json.Marshal(tool.Manifest.Security)
	if err != nil {
		return nil, nil, registry.StorageError("encode policy", err)
	}
	argsJSON, err := json.Marshal(tool.Manifest.Arguments)
	if err != nil {
		return nil, nil, registry.StorageError("encode arguments", err)
	}
	return policyJSON, argsJSON, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
