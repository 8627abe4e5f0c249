package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/engine"
	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/types"
)

// memoryRepository is an in-memory ToolRepository for tests.
type memoryRepository struct {
	tools map[string]types.Tool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{tools: make(map[string]types.Tool)}
}

func (r *memoryRepository) FindByID(_ context.Context, id types.ToolID) (*types.Tool, error) {
	tool, ok := r.tools[id.String()]
	if !ok {
		return nil, nil
	}
	return &tool, nil
}

func (r *memoryRepository) FindAll(_ context.Context, query registry.Query) ([]types.Tool, error) {
	var out []types.Tool
	for _, tool := range r.tools {
		if query.EnabledOnly && !tool.Enabled {
			continue
		}
		if query.NameFilter != "" && !strings.Contains(tool.Manifest.Name, query.NameFilter) {
			continue
		}
		out = append(out, tool)
	}
	return out, nil
}

func (r *memoryRepository) Insert(_ context.Context, tool *types.Tool) error {
	key := tool.Manifest.ID.String()
	if _, exists := r.tools[key]; exists {
		return registry.ErrConflict
	}
	r.tools[key] = *tool
	return nil
}

func (r *memoryRepository) Update(_ context.Context, tool *types.Tool) error {
	key := tool.Manifest.ID.String()
	if _, exists := r.tools[key]; !exists {
		return registry.ErrNotFound
	}
	r.tools[key] = *tool
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id types.ToolID) (bool, error) {
	key := id.String()
	_, existed := r.tools[key]
	delete(r.tools, key)
	return existed, nil
}

// stubCompiler counts compilations and can be told to fail.
type stubCompiler struct {
	calls int
	err   error
}

func (c *stubCompiler) CompileFile(string) (*engine.Module, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return new(engine.Module), nil
}

func installTool(t *testing.T, repo *memoryRepository, id string, mutate func(*types.Tool)) types.Tool {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.wasm"), []byte("\x00asm\x01\x00\x00\x00"), 0o600))

	tool := types.Tool{
		Manifest: types.ToolManifest{
			ID:          types.MustToolID(id),
			Name:        id,
			Version:     types.ToolVersion{Minor: 1},
			Wasm:        "tool.wasm",
			Description: "test tool",
			Security:    types.DefaultPolicy(),
		},
		InstallPath: dir,
		Enabled:     true,
	}
	if mutate != nil {
		mutate(&tool)
	}
	require.NoError(t, repo.Insert(context.Background(), &tool))
	return tool
}

func newTestResolver(repo *memoryRepository, compiler Compiler) *Resolver {
	return NewResolver(compiler, NewComponentCache(8), repo)
}

func TestResolveUnknownTool(t *testing.T) {
	r := newTestResolver(newMemoryRepository(), &stubCompiler{})
	_, _, err := r.Resolve(context.Background(), types.MustToolID("dev.test.ghost"))
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestResolveMissingWasmFile(t *testing.T) {
	repo := newMemoryRepository()
	tool := installTool(t, repo, "dev.test.gone", nil)
	require.NoError(t, os.Remove(tool.WasmPath()))

	r := newTestResolver(repo, &stubCompiler{})
	_, _, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	assert.Contains(t, err.Error(), "WASM file missing")
}

func TestResolveIntegrityViolation(t *testing.T) {
	repo := newMemoryRepository()
	tool := installTool(t, repo, "dev.test.tampered", func(tool *types.Tool) {
		tool.Manifest.WasmSHA256 = strings.Repeat("0", 64)
	})

	r := newTestResolver(repo, &stubCompiler{})
	_, _, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.Error(t, err)
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))
	assert.Equal(t, 0, r.Cache().Len(), "no cache entry may be produced on integrity failure")
}

func TestResolveWithCorrectHash(t *testing.T) {
	repo := newMemoryRepository()
	compiler := &stubCompiler{}
	r := newTestResolver(repo, compiler)

	tool := installTool(t, repo, "dev.test.intact", nil)
	hash, err := ComputeFileHash(tool.WasmPath())
	require.NoError(t, err)
	stored := repo.tools[tool.Manifest.ID.String()]
	stored.Manifest.WasmSHA256 = hash
	repo.tools[tool.Manifest.ID.String()] = stored

	_, hit, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, compiler.calls)
}

func TestResolveSignatureVerification(t *testing.T) {
	repo := newMemoryRepository()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	tool := installTool(t, repo, "dev.test.signed", nil)
	sig, err := SignFile(tool.WasmPath(), kp.SecretKey)
	require.NoError(t, err)

	stored := repo.tools[tool.Manifest.ID.String()]
	stored.Manifest.Signature = sig
	stored.Manifest.SignerPublicKey = kp.PublicKey
	repo.tools[tool.Manifest.ID.String()] = stored

	r := newTestResolver(repo, &stubCompiler{})
	_, _, err = r.Resolve(context.Background(), tool.Manifest.ID)
	require.NoError(t, err)
}

func TestResolveSignatureMismatch(t *testing.T) {
	repo := newMemoryRepository()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	tool := installTool(t, repo, "dev.test.badsig", nil)
	sig, err := SignFile(tool.WasmPath(), kp.SecretKey)
	require.NoError(t, err)

	stored := repo.tools[tool.Manifest.ID.String()]
	stored.Manifest.Signature = sig
	stored.Manifest.SignerPublicKey = other.PublicKey
	repo.tools[tool.Manifest.ID.String()] = stored

	r := newTestResolver(repo, &stubCompiler{})
	_, _, err = r.Resolve(context.Background(), tool.Manifest.ID)
	require.Error(t, err)
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))
}

func TestResolveCachesCompiledComponent(t *testing.T) {
	repo := newMemoryRepository()
	compiler := &stubCompiler{}
	r := newTestResolver(repo, compiler)
	tool := installTool(t, repo, "dev.test.cached", nil)

	_, hit, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = r.Resolve(context.Background(), tool.Manifest.ID)
	require.NoError(t, err)
	assert.True(t, hit, "second resolve must be a cache hit")
	assert.Equal(t, 1, compiler.calls, "compilation must happen once")
}

func TestResolveCompileFailurePropagates(t *testing.T) {
	repo := newMemoryRepository()
	compileErr := types.Internal("failed to compile WASM module: unknown import kami:host/future")
	r := newTestResolver(repo, &stubCompiler{err: compileErr})
	tool := installTool(t, repo, "dev.test.broken", nil)

	_, _, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, compileErr) || err.Error() == compileErr.Error())
	assert.Equal(t, 0, r.Cache().Len())
}

func TestInvalidateRemovesEntry(t *testing.T) {
	repo := newMemoryRepository()
	compiler := &stubCompiler{}
	r := newTestResolver(repo, compiler)
	tool := installTool(t, repo, "dev.test.inval", nil)

	_, _, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.NoError(t, err)
	r.Invalidate(tool.Manifest.ID)

	_, hit, err := r.Resolve(context.Background(), tool.Manifest.ID)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, compiler.calls)
}
