// Package types holds the KAMI domain model: tool identity, manifests,
// security policy, the error taxonomy, and lifecycle events. It has no
// dependency on the engine or transport layers.
package types

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ToolID is the unique identifier of a tool in reverse-domain notation,
// e.g. "dev.example.fetch-url". Uniqueness is enforced by the catalog.
type ToolID struct {
	raw string
}

// ParseToolID validates and returns a ToolID.
func ParseToolID(s string) (ToolID, error) {
	if s == "" {
		return ToolID{}, InvalidInput("tool id cannot be empty")
	}
	if !strings.Contains(s, ".") {
		return ToolID{}, InvalidInput("tool id must use reverse-domain notation (e.g. dev.example.tool)")
	}
	return ToolID{raw: s}, nil
}

// MustToolID parses a tool id and panics on failure. Test helper.
func MustToolID(s string) ToolID {
	id, err := ParseToolID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the raw identifier.
func (id ToolID) String() string { return id.raw }

// IsZero reports whether the id is the zero value.
func (id ToolID) IsZero() bool { return id.raw == "" }

// MarshalText implements encoding.TextMarshaler.
func (id ToolID) MarshalText() ([]byte, error) { return []byte(id.raw), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ToolID) UnmarshalText(b []byte) error {
	parsed, err := ParseToolID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ToolVersion is a MAJOR.MINOR.PATCH triple of unsigned integers.
type ToolVersion struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Patch uint64 `json:"patch"`
}

// ParseToolVersion parses "MAJOR.MINOR.PATCH". Pre-release and build
// metadata are rejected: a tool version is a bare triple.
func ParseToolVersion(s string) (ToolVersion, error) {
	if strings.Count(s, ".") != 2 || strings.ContainsAny(s, "-+") {
		return ToolVersion{}, InvalidInput("version must be in semver format: MAJOR.MINOR.PATCH")
	}
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return ToolVersion{}, InvalidInput("invalid version %q: %v", s, err)
	}
	return ToolVersion{Major: v.Major(), Minor: v.Minor(), Patch: v.Patch()}, nil
}

// String renders the version as MAJOR.MINOR.PATCH.
func (v ToolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Semver converts the version to a semver.Version for comparisons.
func (v ToolVersion) Semver() *semver.Version {
	return semver.New(v.Major, v.Minor, v.Patch, "", "")
}

// MarshalText renders the version as its dotted form.
func (v ToolVersion) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText parses the dotted form.
func (v *ToolVersion) UnmarshalText(b []byte) error {
	parsed, err := ParseToolVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ToolArgument describes one argument of a tool for protocol callers.
// It is projected into a JSON Schema property; the executor never
// interprets it.
type ToolArgument struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Required    bool    `json:"required,omitempty"`
	Default     *string `json:"default,omitempty"`
}

// ToolManifest is the immutable record associated with an installed tool.
type ToolManifest struct {
	ID          ToolID         `json:"id"`
	Name        string         `json:"name"`
	Version     ToolVersion    `json:"version"`
	Wasm        string         `json:"wasm"`
	Description string         `json:"description"`
	Arguments   []ToolArgument `json:"arguments,omitempty"`
	Security    SecurityPolicy `json:"security"`
	// WasmSHA256 is the lowercase hex SHA-256 of the WASM file, computed
	// at install time. Empty for legacy installs; integrity checking is
	// skipped when empty.
	WasmSHA256 string `json:"wasm_sha256,omitempty"`
	// Signature is the hex-encoded Ed25519 signature over the WASM bytes.
	Signature string `json:"signature,omitempty"`
	// SignerPublicKey is the hex-encoded Ed25519 public key of the signer.
	SignerPublicKey string `json:"signer_public_key,omitempty"`
}

// Tool is an installed tool record.
type Tool struct {
	Manifest ToolManifest `json:"manifest"`
	// InstallPath is the absolute directory holding the tool; the WASM
	// artifact lives at InstallPath/Manifest.Wasm.
	InstallPath string `json:"install_path"`
	Enabled     bool   `json:"enabled"`
	// PinnedVersion, when set, excludes the tool from bulk updates.
	PinnedVersion string `json:"pinned_version,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// WasmPath returns the on-disk location of the tool's WASM artifact.
func (t Tool) WasmPath() string {
	return strings.TrimRight(t.InstallPath, "/") + "/" + t.Manifest.Wasm
}

// Pinned reports whether the tool carries a version pin.
func (t Tool) Pinned() bool { return t.PinnedVersion != "" }
