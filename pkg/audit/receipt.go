// Package audit records one receipt per tool execution: who was called,
// a canonical hash of the arguments, a hash of the output, and the
// outcome. Hashes are computed over JCS-canonicalised JSON so logically
// identical payloads always hash alike.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Receipt is the persisted record of one execution.
type Receipt struct {
	ID          string    `json:"id"`
	ToolID      string    `json:"tool_id"`
	ExecutionID string    `json:"execution_id"`
	ArgsHash    string    `json:"args_hash"`
	OutputHash  string    `json:"output_hash"`
	Success     bool      `json:"success"`
	DurationMS  uint64    `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewReceipt builds a receipt for one completed execution. arguments
// and output are the raw JSON payloads; non-JSON output falls back to a
// plain byte hash.
func NewReceipt(toolID, executionID string, arguments, output []byte, success bool, durationMS uint64) (Receipt, error) {
	argsHash, err := CanonicalHash(arguments)
	if err != nil {
		return Receipt{}, fmt.Errorf("hash arguments: %w", err)
	}
	outputHash := bytesHash(output)
	if len(output) > 0 {
		if canonical, err := CanonicalHash(output); err == nil {
			outputHash = canonical
		}
	}
	return Receipt{
		ID:          uuid.NewString(),
		ToolID:      toolID,
		ExecutionID: executionID,
		ArgsHash:    argsHash,
		OutputHash:  outputHash,
		Success:     success,
		DurationMS:  durationMS,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// CanonicalHash returns the hex SHA-256 of the JCS (RFC 8785) canonical
// form of a JSON document, so key order and whitespace never change the
// hash. Empty input hashes as the empty object.
func CanonicalHash(document []byte) (string, error) {
	if len(document) == 0 {
		document = []byte("{}")
	}
	canonical, err := jcs.Transform(document)
	if err != nil {
		return "", err
	}
	return bytesHash(canonical), nil
}

func bytesHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
