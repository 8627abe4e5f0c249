package sandbox

import (
	"log/slog"
	"slices"

	"github.com/kamitools/kami/pkg/types"
)

// Options controls context construction knobs that are per-deployment
// rather than per-policy.
type Options struct {
	// InheritStdout pipes guest stdout to the host's (developer runs).
	InheritStdout bool
	// InheritStderr pipes guest stderr to the host's.
	InheritStderr bool
	// Env holds caller-supplied variables; each is filtered through the
	// policy's env_allow_list before reaching the guest.
	Env map[string]string
	// Dir is the sandbox root for fs_access read-only/sandbox. Empty
	// means no directory is preopened regardless of fs level.
	Dir string
}

// Context is the per-execution capability bundle consumed by the engine
// when it wires WASI and host functions into a fresh store. It never
// outlives the call it was built for.
type Context struct {
	InheritStdout bool
	InheritStderr bool
	// Env holds the filtered (name, value) pairs, sorted by name.
	Env [][2]string
	// PreopenDir is the host directory mapped to the guest root, empty
	// when no filesystem is granted.
	PreopenDir string
	// PreopenWritable distinguishes read-only from sandbox access.
	PreopenWritable bool
	// NetAllowList is consulted synchronously on every outbound attempt.
	NetAllowList []string
	// AllowDNS enables name lookups; only set for non-empty allow-lists.
	AllowDNS bool
	// Jail validates caller-supplied paths for fs host calls.
	Jail *FsJail
}

// Build constructs a fresh Context from a security policy and options.
// Stdin is never inherited. Denied env vars are dropped silently and
// logged; an empty env_allow_list passes all caller-supplied vars (the
// host's own environment is never exposed either way).
func Build(policy types.SecurityPolicy, opts Options) (*Context, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	ctx := &Context{
		InheritStdout: opts.InheritStdout,
		InheritStderr: opts.InheritStderr,
		NetAllowList:  slices.Clone(policy.NetAllowList),
		AllowDNS:      DNSEnabled(policy.NetAllowList),
	}

	for name, value := range opts.Env {
		if len(policy.EnvAllowList) > 0 && !slices.Contains(policy.EnvAllowList, name) {
			slog.Warn("env var blocked by allow-list", "name", name)
			continue
		}
		ctx.Env = append(ctx.Env, [2]string{name, value})
	}
	slices.SortFunc(ctx.Env, func(a, b [2]string) int {
		switch {
		case a[0] < b[0]:
			return -1
		case a[0] > b[0]:
			return 1
		default:
			return 0
		}
	})

	if opts.Dir != "" {
		switch policy.FsAccess {
		case types.FsReadOnly:
			ctx.PreopenDir = opts.Dir
		case types.FsSandbox:
			ctx.PreopenDir = opts.Dir
			ctx.PreopenWritable = true
		}
		if ctx.PreopenDir != "" {
			ctx.Jail = NewFsJail(opts.Dir)
		}
	}

	return ctx, nil
}

// CheckCapability consults the policy for a single capability. Used by
// host calls that need an ad-hoc decision outside the prebuilt context.
func CheckCapability(capability types.Capability, policy types.SecurityPolicy) error {
	switch capability.Kind {
	case types.CapNetwork:
		if !HostAllowed(capability.Value, policy.NetAllowList) {
			return NetworkDenied(capability.Value)
		}
	case types.CapFsRead:
		return CheckAccess(policy, false, capability.Value)
	case types.CapFsWrite:
		return CheckAccess(policy, true, capability.Value)
	case types.CapEnvVar:
		if len(policy.EnvAllowList) > 0 && !slices.Contains(policy.EnvAllowList, capability.Value) {
			return EnvDenied(capability.Value)
		}
	}
	return nil
}
