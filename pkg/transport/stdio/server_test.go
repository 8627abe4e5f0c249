package stdio

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/mcp"
	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/runtime"
	"github.com/kamitools/kami/pkg/types"
)

type staticRuntime struct {
	result runtime.ExecutionResult
}

func (s *staticRuntime) Execute(context.Context, types.ToolID, string) (runtime.ExecutionResult, error) {
	return s.result, nil
}

type emptyRepo struct{}

func (emptyRepo) FindByID(context.Context, types.ToolID) (*types.Tool, error) { return nil, nil }
func (emptyRepo) FindAll(context.Context, registry.Query) ([]types.Tool, error) {
	return nil, nil
}
func (emptyRepo) Insert(context.Context, *types.Tool) error          { return nil }
func (emptyRepo) Update(context.Context, *types.Tool) error          { return nil }
func (emptyRepo) Delete(context.Context, types.ToolID) (bool, error) { return false, nil }

func runServer(t *testing.T, input string) string {
	t.Helper()
	var out strings.Builder
	handler := mcp.NewHandler(&staticRuntime{result: runtime.ExecutionResult{Content: "{}", Success: true}}, emptyRepo{}, "0.1.0")
	server := NewServer(NewTransport(strings.NewReader(input), &out), handler)
	require.NoError(t, server.Run(context.Background()))
	return out.String()
}

func TestTransportReadWriteFraming(t *testing.T) {
	var out strings.Builder
	tr := NewTransport(strings.NewReader("  {\"a\":1}  \n\nline2\n"), &out)

	l1, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, *l1)

	l2, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "", *l2)

	l3, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "line2", *l3)

	l4, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Nil(t, l4, "EOF returns nil")

	require.NoError(t, tr.WriteLine(`{"ok":true}`))
	assert.Equal(t, "{\"ok\":true}\n", out.String())
}

func TestServerAnswersInitialize(t *testing.T) {
	out := runServer(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`+"\n")
	assert.Contains(t, out, `"protocolVersion":"2024-11-05"`)
	assert.Contains(t, out, `"name":"kami"`)
	assert.Equal(t, 1, strings.Count(out, "\n"), "exactly one response line")
}

func TestServerSilentOnNotification(t *testing.T) {
	out := runServer(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n")
	assert.Empty(t, out, "notifications must not produce output")
}

func TestServerContinuesAfterNotification(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n"
	out := runServer(t, input)
	assert.Contains(t, out, `"tools":[]`)
}

func TestServerParseErrorOnGarbage(t *testing.T) {
	out := runServer(t, "this is not json\n")
	assert.Contains(t, out, `-32700`)
	assert.Contains(t, out, `"id":null`)
}

func TestServerSkipsBlankLines(t *testing.T) {
	out := runServer(t, "\n\n"+`{"jsonrpc":"2.0","id":1,"method":"initialize"}`+"\n")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestServerEOFIsCleanShutdown(t *testing.T) {
	out := runServer(t, "")
	assert.Empty(t, out)
}
