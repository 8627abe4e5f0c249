package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolID(t *testing.T) {
	id, err := ParseToolID("dev.example.fetch-url")
	require.NoError(t, err)
	assert.Equal(t, "dev.example.fetch-url", id.String())
}

func TestParseToolIDEmpty(t *testing.T) {
	_, err := ParseToolID("")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestParseToolIDWithoutDot(t *testing.T) {
	_, err := ParseToolID("no-dot")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestToolIDJSONRoundtrip(t *testing.T) {
	id := MustToolID("dev.kami.echo")
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"dev.kami.echo"`, string(data))

	var back ToolID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)
}

func TestParseToolVersion(t *testing.T) {
	v, err := ParseToolVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, ToolVersion{Major: 1, Minor: 2, Patch: 3}, v)
	assert.Equal(t, "1.2.3", v.String())
}

func TestParseToolVersionRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"1.2", "a.b.c", "1.2.3-rc1", "1.2.3+build", "1.2.3.4", ""} {
		_, err := ParseToolVersion(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestToolWasmPath(t *testing.T) {
	tool := Tool{
		Manifest:    ToolManifest{Wasm: "tool.wasm"},
		InstallPath: "/opt/kami/tools/dev.kami.echo/",
	}
	assert.Equal(t, "/opt/kami/tools/dev.kami.echo/tool.wasm", tool.WasmPath())
}

func TestToolPinned(t *testing.T) {
	assert.False(t, Tool{}.Pinned())
	assert.True(t, Tool{PinnedVersion: "1.0.0"}.Pinned())
}
