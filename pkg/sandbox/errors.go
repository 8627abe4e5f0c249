// Package sandbox builds per-execution capability contexts: network
// allow-list matching, a filesystem jail, and environment filtering.
// Everything is deny-by-default; a capability exists only if the
// security policy grants it.
package sandbox

import "github.com/kamitools/kami/pkg/types"

// NetworkDenied builds the error for a refused outbound connection,
// pairing the offending host with the concrete allow-list fix.
func NetworkDenied(host string) *types.KamiError {
	return types.PermissionDenied("network access denied: %s", host).
		WithHint("the host is not covered by the tool's net_allow_list").
		WithFix(`add net_allow_list = ["` + host + `"] to the tool's security policy`)
}

// FsDenied builds the error for a refused filesystem path.
func FsDenied(path string) *types.KamiError {
	return types.PermissionDenied("filesystem access denied: %s", path).
		WithHint("the path escapes the sandbox jail or fs_access forbids it").
		WithFix(`set fs_access = "sandbox" and keep paths relative to the jail root`)
}

// EnvDenied builds the error for a refused environment variable.
func EnvDenied(name string) *types.KamiError {
	return types.PermissionDenied("environment variable denied: %s", name).
		WithFix(`add env_allow_list = ["` + name + `"] to the tool's security policy`)
}
