package types

import (
	"net"
	"strings"
	"time"
)

// FsAccess is the filesystem access level granted to a tool.
type FsAccess string

const (
	// FsNone grants no filesystem access.
	FsNone FsAccess = "none"
	// FsReadOnly preopens the sandbox root read-only.
	FsReadOnly FsAccess = "read-only"
	// FsSandbox preopens the sandbox root read-write.
	FsSandbox FsAccess = "sandbox"
)

// IsValid reports whether the access level is a known value.
func (a FsAccess) IsValid() bool {
	switch a {
	case FsNone, FsReadOnly, FsSandbox:
		return true
	default:
		return false
	}
}

// ResourceLimits bounds a single tool execution. All limits must be
// strictly positive; zero is rejected at validation.
type ResourceLimits struct {
	// MaxMemoryMB caps the instance's linear memory in MiB.
	MaxMemoryMB uint32 `json:"max_memory_mb"`
	// MaxExecutionMS is the wall-clock budget in milliseconds.
	MaxExecutionMS uint64 `json:"max_execution_ms"`
	// MaxFuel is the instruction budget pre-charged into the store.
	MaxFuel uint64 `json:"max_fuel"`
}

// DefaultLimits returns the conservative install-time defaults.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryMB:    64,
		MaxExecutionMS: 5000,
		MaxFuel:        1_000_000,
	}
}

// ExecutionTimeout returns the wall-clock budget as a Duration.
func (l ResourceLimits) ExecutionTimeout() time.Duration {
	return time.Duration(l.MaxExecutionMS) * time.Millisecond
}

// SecurityPolicy is the capability grant for a tool: deny-all by default.
type SecurityPolicy struct {
	// NetAllowList holds literal IPs or hostname patterns ("*.x.tld"
	// matches "x.tld" and subdomains). Empty means deny all outbound.
	NetAllowList []string `json:"net_allow_list,omitempty"`
	// FsAccess is the filesystem access level.
	FsAccess FsAccess `json:"fs_access"`
	// EnvAllowList holds environment variable names passed through to
	// the guest. Host variables are never exposed implicitly.
	EnvAllowList []string `json:"env_allow_list,omitempty"`
	Limits       ResourceLimits `json:"limits"`
}

// DefaultPolicy returns the deny-all policy with default limits.
func DefaultPolicy() SecurityPolicy {
	return SecurityPolicy{FsAccess: FsNone, Limits: DefaultLimits()}
}

// Validate rejects zero-valued limits, unknown fs levels, and malformed
// network patterns.
func (p SecurityPolicy) Validate() error {
	if p.Limits.MaxMemoryMB == 0 {
		return InvalidInput("max_memory_mb must be greater than zero")
	}
	if p.Limits.MaxExecutionMS == 0 {
		return InvalidInput("max_execution_ms must be greater than zero")
	}
	if p.Limits.MaxFuel == 0 {
		return InvalidInput("max_fuel must be greater than zero")
	}
	if p.FsAccess != "" && !p.FsAccess.IsValid() {
		return InvalidInput("unknown fs_access %q", p.FsAccess)
	}
	for _, pattern := range p.NetAllowList {
		if err := validateNetPattern(pattern); err != nil {
			return err
		}
	}
	return nil
}

// validateNetPattern accepts literal IPs, exact hostnames, and "*.domain"
// wildcards.
func validateNetPattern(pattern string) error {
	if pattern == "" {
		return InvalidInput("empty pattern in net_allow_list")
	}
	if strings.HasPrefix(pattern, "*.") {
		if len(pattern) <= 2 {
			return InvalidInput("invalid wildcard pattern %q", pattern)
		}
		return nil
	}
	if strings.Contains(pattern, "*") {
		return InvalidInput("wildcard only allowed as leading \"*.\" in %q", pattern)
	}
	if ip := net.ParseIP(pattern); ip != nil {
		return nil
	}
	return nil
}

// Capability is an atomic grantable right consulted by host calls.
type Capability struct {
	Kind  CapabilityKind `json:"kind"`
	Value string         `json:"value"`
}

// CapabilityKind classifies a capability.
type CapabilityKind string

const (
	// CapNetwork is outbound network access to a host.
	CapNetwork CapabilityKind = "network"
	// CapFsRead is filesystem read access to a path.
	CapFsRead CapabilityKind = "fs_read"
	// CapFsWrite is filesystem write access to a path.
	CapFsWrite CapabilityKind = "fs_write"
	// CapEnvVar is access to one environment variable.
	CapEnvVar CapabilityKind = "env_var"
)

// NetworkCap builds a network capability for a host.
func NetworkCap(host string) Capability { return Capability{Kind: CapNetwork, Value: host} }

// FsReadCap builds a read capability for a path.
func FsReadCap(path string) Capability { return Capability{Kind: CapFsRead, Value: path} }

// FsWriteCap builds a write capability for a path.
func FsWriteCap(path string) Capability { return Capability{Kind: CapFsWrite, Value: path} }

// EnvVarCap builds a capability for one environment variable name.
func EnvVarCap(name string) Capability { return Capability{Kind: CapEnvVar, Value: name} }
