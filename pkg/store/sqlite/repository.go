// Package sqlite persists the tool catalog in SQLite through the
// registry port. The schema evolves forward-only, gated by a version
// counter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/types"
)

// Repository is the SQLite adapter of registry.ToolRepository.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at path and migrates it.
// Use ":memory:" for an ephemeral catalog.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, registry.StorageError("open", err)
	}
	// modernc sqlite serialises writes; one connection avoids lock
	// contention between the pool's writers.
	db.SetMaxOpenConns(1)

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// OpenInMemory opens an ephemeral catalog for tests and dry runs.
func OpenInMemory() (*Repository, error) {
	return Open(":memory:")
}

// Close releases the database handle.
func (r *Repository) Close() error { return r.db.Close() }

// DB exposes the handle for adjacent stores sharing the file.
func (r *Repository) DB() *sql.DB { return r.db }

const selectColumns = `id, name, version, description, wasm, install_path, enabled,
	security_policy, arguments, wasm_sha256, pinned_version, updated_at,
	signature, signer_public_key`

// FindByID implements registry.ToolRepository.
func (r *Repository) FindByID(ctx context.Context, id types.ToolID) (*types.Tool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM tools WHERE id = ?`, id.String())
	tool, err := scanTool(row)
	if err == sql.ErrNoRows {
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
		clauses = append(clauses, `name LIKE ?`)
		args = append(args, "%"+query.NameFilter+"%")
	}
	if query.EnabledOnly {
		clauses = append(clauses, `enabled = 1`)
	}
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	sb.WriteString(" ORDER BY id")
	if query.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
		if query.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, query.Offset)
		}
	} else if query.Offset > 0 {
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, query.Offset)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tool.Manifest.ID.String(), tool.Manifest.Name, tool.Manifest.Version.String(),
		tool.Manifest.Description, tool.Manifest.Wasm, tool.InstallPath,
		boolToInt(tool.Enabled), policyJSON, argsJSON,
		nullable(tool.Manifest.WasmSHA256), nullable(tool.PinnedVersion),
		nullable(tool.UpdatedAt), nullable(tool.Manifest.Signature),
		nullable(tool.Manifest.SignerPublicKey))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
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
		UPDATE tools SET name = ?, version = ?, description = ?, wasm = ?,
			install_path = ?, enabled = ?, security_policy = ?, arguments = ?,
			wasm_sha256 = ?, pinned_version = ?, updated_at = ?,
			signature = ?, signer_public_key = ?
		WHERE id = ?`,
		tool.Manifest.Name, tool.Manifest.Version.String(), tool.Manifest.Description,
		tool.Manifest.Wasm, tool.InstallPath, boolToInt(tool.Enabled),
		policyJSON, argsJSON,
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id.String())
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
		enabled                                           int
		policyJSON, argsJSON                              string
		sha256Hex, pinned, updatedAt, sig, signerKey      sql.NullString
	)
	err := row.Scan(&id, &name, &version, &description, &wasm, &installPath,
		&enabled, &policyJSON, &argsJSON, &sha256Hex, &pinned, &updatedAt, &sig, &signerKey)
	if err != nil {
		if err == sql.ErrNoRows {
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
	if err := json.Unmarshal([]byte(policyJSON), &policy); err != nil {
		return nil, registry.CorruptionError(id, err)
	}
	var arguments []types.ToolArgument
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
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
		Enabled:       enabled != 0,
		PinnedVersion: pinned.String,
		UpdatedAt:     updatedAt.String,
	}, nil
}

func encodeTool(tool *types.Tool) (string, string, error) {
	policyJSON, err := json.Marshal(tool.Manifest.Security)
	if err != nil {
		return "", "", registry.StorageError("encode policy", err)
	}
	argsJSON, err := json.Marshal(tool.Manifest.Arguments)
	if err != nil {
		return "", "", registry.StorageError("encode arguments", err)
	}
	return string(policyJSON), string(argsJSON), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
