package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// WASM file integrity. The installer records the SHA-256 of the binary;
// the resolver recomputes it before compiling so tampering between
// install time and execution time is caught.

// ComputeFileHash returns the lowercase hex SHA-256 of a file's bytes.
func ComputeFileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFileHash checks a file against an expected hex digest. An empty
// expected hash skips verification: installs made before integrity
// recording carry no hash.
func VerifyFileHash(path, expected string) error {
	if expected == "" {
		return nil
	}
	actual, err := ComputeFileHash(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("integrity violation: expected %s, got %s", expected, actual)
	}
	return nil
}
