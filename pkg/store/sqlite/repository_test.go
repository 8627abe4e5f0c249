package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/types"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleTool(id string) types.Tool {
	policy := types.DefaultPolicy()
	policy.NetAllowList = []string{"*.example.com"}
	policy.EnvAllowList = []string{"LANG"}
	policy.FsAccess = types.FsReadOnly
	return types.Tool{
		Manifest: types.ToolManifest{
			ID:          types.MustToolID(id),
			Name:        "fetch-url",
			Version:     types.ToolVersion{Major: 1, Minor: 2, Patch: 3},
			Wasm:        "tool.wasm",
			Description: "Fetches a URL",
			Arguments: []types.ToolArgument{
				{Name: "url", Type: "string", Description: "Target", Required: true},
			},
			Security:   policy,
			WasmSHA256: "ab12",
		},
		InstallPath: "/opt/kami/tools/" + id,
		Enabled:     true,
	}
}

func TestInsertThenFindByIDRoundtrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	tool := sampleTool("dev.example.fetch-url")

	require.NoError(t, repo.Insert(ctx, &tool))

	found, err := repo.FindByID(ctx, tool.Manifest.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tool.Manifest.ID, found.Manifest.ID)
	assert.Equal(t, tool.Manifest.Version, found.Manifest.Version)
	assert.Equal(t, tool.Manifest.Security.NetAllowList, found.Manifest.Security.NetAllowList)
	assert.Equal(t, tool.Manifest.Security.FsAccess, found.Manifest.Security.FsAccess)
	assert.Equal(t, tool.Manifest.Arguments, found.Manifest.Arguments)
	assert.Equal(t, tool.InstallPath, found.InstallPath)
	assert.True(t, found.Enabled)
}

func TestFindByIDAbsentReturnsNil(t *testing.T) {
	repo := openTestRepo(t)
	found, err := repo.FindByID(context.Background(), types.MustToolID("dev.test.none"))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestInsertDuplicateIsConflict(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	tool := sampleTool("dev.test.dup")

	require.NoError(t, repo.Insert(ctx, &tool))
	err := repo.Insert(ctx, &tool)
	require.ErrorIs(t, err, registry.ErrConflict)
}

func TestUpdateExisting(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	tool := sampleTool("dev.test.up")
	require.NoError(t, repo.Insert(ctx, &tool))

	tool.Enabled = false
	tool.PinnedVersion = "1.2.3"
	tool.Manifest.Version = types.ToolVersion{Major: 1, Minor: 3}
	require.NoError(t, repo.Update(ctx, &tool))

	found, err := repo.FindByID(ctx, tool.Manifest.ID)
	require.NoError(t, err)
	assert.False(t, found.Enabled)
	assert.Equal(t, "1.2.3", found.PinnedVersion)
	assert.Equal(t, types.ToolVersion{Major: 1, Minor: 3}, found.Manifest.Version)
}

func TestUpdateAbsentIsNotFound(t *testing.T) {
	repo := openTestRepo(t)
	tool := sampleTool("dev.test.ghost")
	err := repo.Update(context.Background(), &tool)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDeleteThenFindReturnsNothing(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	tool := sampleTool("dev.test.del")
	require.NoError(t, repo.Insert(ctx, &tool))

	existed, err := repo.Delete(ctx, tool.Manifest.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	found, err := repo.FindByID(ctx, tool.Manifest.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	existed, err = repo.Delete(ctx, tool.Manifest.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestFindAllFilters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	a := sampleTool("dev.test.alpha")
	a.Manifest.Name = "alpha"
	b := sampleTool("dev.test.beta")
	b.Manifest.Name = "beta"
	b.Enabled = false
	require.NoError(t, repo.Insert(ctx, &a))
	require.NoError(t, repo.Insert(ctx, &b))

	all, err := repo.FindAll(ctx, registry.AllTools())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := repo.FindAll(ctx, registry.EnabledTools())
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "alpha", enabled[0].Manifest.Name)

	named, err := repo.FindAll(ctx, registry.AllTools().WithName("bet"))
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, "beta", named[0].Manifest.Name)

	limited, err := repo.FindAll(ctx, registry.AllTools().WithLimit(1))
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSignatureColumnsSurvive(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	tool := sampleTool("dev.test.signed")
	tool.Manifest.Signature = "aa"
	tool.Manifest.SignerPublicKey = "bb"
	require.NoError(t, repo.Insert(ctx, &tool))

	found, err := repo.FindByID(ctx, tool.Manifest.ID)
	require.NoError(t, err)
	assert.Equal(t, "aa", found.Manifest.Signature)
	assert.Equal(t, "bb", found.Manifest.SignerPublicKey)
}

func TestMigrationIsIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	require.NoError(t, repo.migrate(context.Background()))

	version, err := repo.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}
