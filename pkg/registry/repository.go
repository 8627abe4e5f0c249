// Package registry defines the persistence port for the tool catalog.
// Adapters live under pkg/store; the core depends only on this surface.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamitools/kami/pkg/types"
)

// Sentinel errors surfaced by repository implementations.
var (
	// ErrNotFound marks a lookup for an id that is not in the catalog.
	ErrNotFound = errors.New("tool not found")
	// ErrConflict marks an insert for an id that already exists.
	ErrConflict = errors.New("tool already exists")
	// ErrStorage marks a database or I/O failure.
	ErrStorage = errors.New("storage error")
	// ErrDataCorruption marks a record that no longer deserialises.
	ErrDataCorruption = errors.New("data corruption")
)

// StorageError wraps an underlying driver failure as ErrStorage.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// CorruptionError wraps a decode failure as ErrDataCorruption.
func CorruptionError(id string, err error) error {
	return fmt.Errorf("%w: record %s: %v", ErrDataCorruption, id, err)
}

// ToolRepository is the async persistence port for installed tools.
type ToolRepository interface {
	// FindByID returns the tool or (nil, nil) when absent.
	FindByID(ctx context.Context, id types.ToolID) (*types.Tool, error)
	// FindAll returns tools matching the query.
	FindAll(ctx context.Context, query Query) ([]types.Tool, error)
	// Insert stores a new tool; ErrConflict if the id exists.
	Insert(ctx context.Context, tool *types.Tool) error
	// Update replaces an existing tool; ErrNotFound if absent.
	Update(ctx context.Context, tool *types.Tool) error
	// Delete removes a tool, reporting whether it existed.
	Delete(ctx context.Context, id types.ToolID) (bool, error)
}

// Query filters and paginates FindAll.
type Query struct {
	// NameFilter selects tools whose name contains the substring.
	NameFilter string
	// EnabledOnly restricts results to enabled tools.
	EnabledOnly bool
	// Limit caps the result count; zero means no cap.
	Limit uint32
	// Offset skips leading results for pagination.
	Offset uint32
}

// AllTools is the query matching everything.
func AllTools() Query { return Query{} }

// EnabledTools is the query matching enabled tools only.
func EnabledTools() Query { return Query{EnabledOnly: true} }

// WithName returns a copy with the name filter set.
func (q Query) WithName(name string) Query {
	q.NameFilter = name
	return q
}

// WithLimit returns a copy with the result cap set.
func (q Query) WithLimit(limit uint32) Query {
	q.Limit = limit
	return q
}
