package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists receipts through the SQLite handle it is given: the
// catalog's own handle, or a separate receipts database.
type Store struct {
	db *sql.DB
}

// NewStore creates the receipts table when missing.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		tool_id TEXT NOT NULL,
		execution_id TEXT NOT NULL,
		args_hash TEXT NOT NULL,
		output_hash TEXT NOT NULL,
		success INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrate receipts: %w", err)
	}
	return nil
}

// createdAtLayout keeps every fraction nine digits wide, so the stored
// UTC timestamps sort chronologically as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Append stores one receipt.
func (s *Store) Append(ctx context.Context, receipt Receipt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, tool_id, execution_id, args_hash, output_hash, success, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.ToolID, receipt.ExecutionID, receipt.ArgsHash,
		receipt.OutputHash, boolToInt(receipt.Success), receipt.DurationMS,
		receipt.CreatedAt.Format(createdAtLayout))
	if err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	return nil
}

// ListByTool returns up to limit receipts for a tool, newest first.
func (s *Store) ListByTool(ctx context.Context, toolID string, limit int) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_id, execution_id, args_hash, output_hash, success, duration_ms, created_at
		FROM receipts WHERE tool_id = ? ORDER BY created_at DESC LIMIT ?`,
		toolID, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []Receipt
	for rows.Next() {
		var (
			r         Receipt
			success   int
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.ToolID, &r.ExecutionID, &r.ArgsHash,
			&r.OutputHash, &success, &r.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.Success = success != 0
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = ts
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
