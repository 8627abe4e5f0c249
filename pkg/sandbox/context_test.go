package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/types"
)

func policyWith(mutate func(*types.SecurityPolicy)) types.SecurityPolicy {
	p := types.DefaultPolicy()
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func TestBuildDefaultContext(t *testing.T) {
	ctx, err := Build(policyWith(nil), Options{})
	require.NoError(t, err)
	assert.Empty(t, ctx.NetAllowList)
	assert.False(t, ctx.AllowDNS)
	assert.Empty(t, ctx.PreopenDir)
	assert.Nil(t, ctx.Jail)
}

func TestBuildRejectsInvalidPolicy(t *testing.T) {
	p := policyWith(func(p *types.SecurityPolicy) { p.Limits.MaxFuel = 0 })
	_, err := Build(p, Options{})
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidInput, types.KindOf(err))
}

func TestBuildFiltersEnvByAllowList(t *testing.T) {
	p := policyWith(func(p *types.SecurityPolicy) { p.EnvAllowList = []string{"LANG"} })
	ctx, err := Build(p, Options{Env: map[string]string{"LANG": "en_US", "SECRET": "x"}})
	require.NoError(t, err)
	require.Len(t, ctx.Env, 1)
	assert.Equal(t, [2]string{"LANG", "en_US"}, ctx.Env[0])
}

func TestBuildEmptyAllowListPassesCallerVars(t *testing.T) {
	ctx, err := Build(policyWith(nil), Options{Env: map[string]string{"A": "1", "B": "2"}})
	require.NoError(t, err)
	assert.Len(t, ctx.Env, 2)
	// Deterministic ordering regardless of map iteration.
	assert.Equal(t, "A", ctx.Env[0][0])
	assert.Equal(t, "B", ctx.Env[1][0])
}

func TestBuildFsLevels(t *testing.T) {
	dir := t.TempDir()

	none, err := Build(policyWith(nil), Options{Dir: dir})
	require.NoError(t, err)
	assert.Empty(t, none.PreopenDir)

	ro, err := Build(policyWith(func(p *types.SecurityPolicy) { p.FsAccess = types.FsReadOnly }), Options{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, ro.PreopenDir)
	assert.False(t, ro.PreopenWritable)
	require.NotNil(t, ro.Jail)

	rw, err := Build(policyWith(func(p *types.SecurityPolicy) { p.FsAccess = types.FsSandbox }), Options{Dir: dir})
	require.NoError(t, err)
	assert.True(t, rw.PreopenWritable)
}

func TestBuildDNSFollowsAllowList(t *testing.T) {
	p := policyWith(func(p *types.SecurityPolicy) { p.NetAllowList = []string{"example.com"} })
	ctx, err := Build(p, Options{})
	require.NoError(t, err)
	assert.True(t, ctx.AllowDNS)
}

func TestCheckCapability(t *testing.T) {
	p := policyWith(func(p *types.SecurityPolicy) {
		p.NetAllowList = []string{"*.example.com"}
		p.EnvAllowList = []string{"HOME"}
	})

	assert.NoError(t, CheckCapability(types.NetworkCap("api.example.com"), p))
	assert.Error(t, CheckCapability(types.NetworkCap("evil.io"), p))
	assert.NoError(t, CheckCapability(types.EnvVarCap("HOME"), p))
	assert.Error(t, CheckCapability(types.EnvVarCap("PATH"), p))
	assert.Error(t, CheckCapability(types.FsReadCap("x"), p))
}
