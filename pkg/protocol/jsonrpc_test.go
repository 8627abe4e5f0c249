package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/types"
)

func TestRequestRoundtripPreservesFields(t *testing.T) {
	req := NewRequest(NumberID(7), "tools/call", json.RawMessage(`{"name":"dev.kami.echo"}`))
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var back Request
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, req.ID, back.ID)
	assert.Equal(t, req.Method, back.Method)
	assert.JSONEq(t, string(req.Params), string(back.Params))
}

func TestRequestIDNumberOrString(t *testing.T) {
	var id RequestID
	require.NoError(t, json.Unmarshal([]byte(`42`), &id))
	assert.Equal(t, NumberID(42), id)

	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &id))
	assert.Equal(t, StringID("abc"), id)

	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &id))
}

func TestRequestValidate(t *testing.T) {
	req := NewRequest(NumberID(1), "initialize", nil)
	assert.NoError(t, req.Validate())

	req.JSONRPC = "1.0"
	assert.Error(t, req.Validate())

	req = NewRequest(NumberID(1), "", nil)
	assert.Error(t, req.Validate())
}

func TestSuccessResponseShape(t *testing.T) {
	resp, err := Success(StringID("a"), map[string]bool{"ok": true})
	require.NoError(t, err)
	data, err := json.Marshal(OK(resp))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","result":{"ok":true}}`, string(data))
}

func TestErrorResponseShape(t *testing.T) {
	out := Fail(Error(NumberID(3), CodeMethodNotFound, "no such method"))
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"no such method"}}`, string(data))
}

func TestNotificationHasNoID(t *testing.T) {
	var notif Notification
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &notif))
	assert.Equal(t, "notifications/initialized", notif.Method)
}

func TestBuildInputSchemaEmpty(t *testing.T) {
	schema := BuildInputSchema(nil)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(schema, &decoded))
	assert.Equal(t, "object", decoded["type"])
	assert.Empty(t, decoded["properties"])
	_, hasRequired := decoded["required"]
	assert.False(t, hasRequired, "required must be omitted when empty")
}

func TestBuildInputSchemaWithArguments(t *testing.T) {
	def := "5000"
	schema := BuildInputSchema([]types.ToolArgument{
		{Name: "url", Type: "string", Description: "The URL", Required: true},
		{Name: "timeout", Type: "number", Description: "Timeout in ms", Default: &def},
	})

	var decoded struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(schema, &decoded))
	assert.Equal(t, "object", decoded.Type)
	assert.Equal(t, "string", decoded.Properties["url"]["type"])
	assert.Equal(t, "number", decoded.Properties["timeout"]["type"])
	assert.Equal(t, "5000", decoded.Properties["timeout"]["default"])
	assert.Equal(t, []string{"url"}, decoded.Required)
}
