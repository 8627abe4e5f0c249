package engine

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/sandbox"
	"github.com/kamitools/kami/pkg/types"
)

// emptyModule is the smallest valid WebAssembly binary: magic + version.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestCompileEmptyModule(t *testing.T) {
	e := New(DefaultConfig())
	m, err := e.Compile(emptyModule)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestCompileGarbageIsClassified(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Compile([]byte("definitely not wasm"))
	require.Error(t, err)
	assert.Equal(t, types.KindInternal, types.KindOf(err))

	var kerr *types.KamiError
	require.ErrorAs(t, err, &kerr)
	assert.NotEmpty(t, kerr.Hint)
	assert.NotEmpty(t, kerr.Fix)
}

func TestSessionRejectsModuleWithoutEntryPoints(t *testing.T) {
	e := New(DefaultConfig())
	m, err := e.Compile(emptyModule)
	require.NoError(t, err)

	sbx, err := sandbox.Build(types.DefaultPolicy(), sandbox.Options{})
	require.NoError(t, err)

	s, err := NewSession(e, sbx, types.DefaultLimits(), `{}`)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Run(m, `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither run nor _start")
}

func TestSessionFuelStartsUnconsumed(t *testing.T) {
	e := New(DefaultConfig())
	sbx, err := sandbox.Build(types.DefaultPolicy(), sandbox.Options{})
	require.NoError(t, err)

	s, err := NewSession(e, sbx, types.DefaultLimits(), "")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(0), s.FuelConsumed())
}

func TestSessionPreopensReadOnlyAndWritable(t *testing.T) {
	e := New(DefaultConfig())
	dir := t.TempDir()

	for _, access := range []types.FsAccess{types.FsReadOnly, types.FsSandbox} {
		policy := types.DefaultPolicy()
		policy.FsAccess = access
		sbx, err := sandbox.Build(policy, sandbox.Options{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, access == types.FsSandbox, sbx.PreopenWritable)

		s, err := NewSession(e, sbx, types.DefaultLimits(), "")
		require.NoError(t, err, "fs_access %s", access)
		s.Close()
	}
}

func TestTrapClassification(t *testing.T) {
	assert.True(t, IsInterrupt(errors.New("wasm trap: interrupt")))
	assert.True(t, IsInterrupt(errors.New("epoch deadline exceeded")))
	assert.False(t, IsInterrupt(nil))
	assert.True(t, IsFuelExhausted(errors.New("all fuel consumed by WebAssembly")))
	assert.False(t, IsFuelExhausted(errors.New("unrelated")))
}

func TestTrapErrorMapping(t *testing.T) {
	assert.Equal(t, types.KindTimeout, types.KindOf(trapError(errors.New("wasm trap: interrupt"))))
	assert.Equal(t, types.KindResourceExhausted, types.KindOf(trapError(errors.New("all fuel consumed"))))
	assert.Equal(t, types.KindInternal, types.KindOf(trapError(errors.New("unreachable executed"))))
}

func TestHostHTTPGetDeniedByEmptyAllowList(t *testing.T) {
	sbx, err := sandbox.Build(types.DefaultPolicy(), sandbox.Options{})
	require.NoError(t, err)

	env := hostHTTPGet("https://example.com/data", sbx)
	assert.Contains(t, env.Error, "refused by policy")
	assert.Zero(t, env.Status)
}

func TestHostHTTPGetAllowedIPLiteral(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("kami-test-response"))
	}))
	defer server.Close()

	policy := types.DefaultPolicy()
	policy.NetAllowList = []string{"127.0.0.1"}
	sbx, err := sandbox.Build(policy, sandbox.Options{})
	require.NoError(t, err)

	env := hostHTTPGet(server.URL, sbx)
	assert.Empty(t, env.Error)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Contains(t, env.Body, "kami-test-response")
}

func TestHostHTTPGetHostnameOutsideAllowList(t *testing.T) {
	policy := types.DefaultPolicy()
	policy.NetAllowList = []string{"127.0.0.1"}
	sbx, err := sandbox.Build(policy, sandbox.Options{})
	require.NoError(t, err)

	// DNS is enabled (non-empty list) but the hostname is not allowed.
	env := hostHTTPGet("https://example.com/", sbx)
	assert.Contains(t, env.Error, "refused by policy")
}

func TestHostHTTPGetRejectsInvalidURL(t *testing.T) {
	sbx, err := sandbox.Build(types.DefaultPolicy(), sandbox.Options{})
	require.NoError(t, err)

	env := hostHTTPGet("::not a url::", sbx)
	assert.Contains(t, env.Error, "invalid url")
}
