package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/kamitools/kami/pkg/engine"
	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/types"
)

// Compiler compiles a WASM file into a shareable artifact. Implemented
// by *engine.Engine; tests substitute a double.
type Compiler interface {
	CompileFile(path string) (*engine.Module, error)
}

// Resolver turns a tool id into a cache entry ready for execution:
// cache probe, catalog lookup, on-disk presence, integrity, signature,
// compile, cache insert — in that order, each step fatal on failure.
type Resolver struct {
	compiler   Compiler
	cache      *ComponentCache
	repository registry.ToolRepository
}

// NewResolver wires the resolver's collaborators.
func NewResolver(compiler Compiler, cache *ComponentCache, repository registry.ToolRepository) *Resolver {
	return &Resolver{compiler: compiler, cache: cache, repository: repository}
}

// Resolve returns the cache entry for id, compiling on first use.
// The second return reports whether this was a cache hit.
func (r *Resolver) Resolve(ctx context.Context, id types.ToolID) (CachedComponent, bool, error) {
	if entry, ok := r.cache.Get(id); ok {
		slog.Debug("component cache hit", "tool", id)
		return entry, true, nil
	}

	tool, err := r.repository.FindByID(ctx, id)
	if err != nil {
		return CachedComponent{}, false, types.NotFound("tool not found: %s: %v", id, err).WithCause(err)
	}
	if tool == nil {
		return CachedComponent{}, false, types.NotFound("tool not found: %s", id).
			WithFix("install the tool with `kami install " + id.String() + "`")
	}

	wasmPath := tool.WasmPath()
	if _, err := os.Stat(wasmPath); err != nil {
		return CachedComponent{}, false, types.NotFound("WASM file missing: %s", wasmPath).
			WithHint("the install directory no longer holds the binary").
			WithFix("reinstall the tool to restore " + wasmPath).
			WithCause(err)
	}

	if err := VerifyFileHash(wasmPath, tool.Manifest.WasmSHA256); err != nil {
		return CachedComponent{}, false, types.PermissionDenied("integrity violation for %s: %v", id, err).
			WithHint("the on-disk binary does not match the hash recorded at install time").
			WithFix("reinstall the tool; do not run a tampered binary").
			WithCause(err)
	}

	if sig, pk := tool.Manifest.Signature, tool.Manifest.SignerPublicKey; sig != "" && pk != "" {
		if err := VerifyFileSignature(wasmPath, sig, pk); err != nil {
			return CachedComponent{}, false, types.PermissionDenied("signature verification failed for %s: %v", id, err).
				WithHint("the binary is not signed by the recorded key").
				WithCause(err)
		}
		slog.Debug("signature verified", "tool", id)
	}

	slog.Info("compiling component", "tool", id, "path", wasmPath)
	artifact, err := r.compiler.CompileFile(wasmPath)
	if err != nil {
		return CachedComponent{}, false, err
	}

	entry := CachedComponent{
		Artifact: artifact,
		Policy:   tool.Manifest.Security,
		WasmPath: wasmPath,
	}
	r.cache.Insert(id, entry)

	return entry, false, nil
}

// Invalidate drops the cached entry for id.
func (r *Resolver) Invalidate(id types.ToolID) {
	r.cache.Invalidate(id)
}

// Cache exposes the component cache for inspection.
func (r *Resolver) Cache() *ComponentCache { return r.cache }
