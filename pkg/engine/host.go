package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v29"

	"github.com/kamitools/kami/pkg/sandbox"
)

// Host functions exposed to guests under the "kami:host" namespace.
// Every outbound request consults the sandbox context's network
// allow-list before the socket is opened, including each redirect hop.

const hostModule = "kami:host"

// httpClientTimeout bounds a single host-side HTTP call. The executor's
// outer timeout still applies on top.
const httpClientTimeout = 30 * time.Second

// hostHTTPEnvelope is the JSON handed back to the guest for http_get.
type hostHTTPEnvelope struct {
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

func registerHostFuncs(linker *wasmtime.Linker, sbx *sandbox.Context) error {
	if err := linker.FuncWrap(hostModule, "log", func(caller *wasmtime.Caller, ptr, size int32) {
		if msg, ok := readGuestString(caller, ptr, size); ok {
			slog.Debug("guest log", "msg", msg)
		}
	}); err != nil {
		return fmt.Errorf("define %s.log: %w", hostModule, err)
	}

	if err := linker.FuncWrap(hostModule, "http_get", func(caller *wasmtime.Caller, urlPtr, urlLen int32) int64 {
		rawURL, ok := readGuestString(caller, urlPtr, urlLen)
		if !ok {
			return writeEnvelope(caller, hostHTTPEnvelope{Error: "invalid url pointer"})
		}
		return writeEnvelope(caller, hostHTTPGet(rawURL, sbx))
	}); err != nil {
		return fmt.Errorf("define %s.http_get: %w", hostModule, err)
	}

	return nil
}

// hostHTTPGet performs a policy-checked GET on behalf of the guest.
func hostHTTPGet(rawURL string, sbx *sandbox.Context) hostHTTPEnvelope {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return hostHTTPEnvelope{Error: fmt.Sprintf("invalid url: %s", rawURL)}
	}
	if net.ParseIP(u.Hostname()) == nil && !sbx.AllowDNS {
		return hostHTTPEnvelope{Error: fmt.Sprintf("network access denied: connection to %s refused by policy (name lookups disabled)", u.Hostname())}
	}
	if !sandbox.HostAllowed(u.Hostname(), sbx.NetAllowList) {
		slog.Warn("outbound HTTP denied by net_allow_list", "host", u.Hostname())
		return hostHTTPEnvelope{Error: fmt.Sprintf("network access denied: connection to %s refused by policy", u.Hostname())}
	}

	client := &http.Client{
		Timeout: httpClientTimeout,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			if !sandbox.HostAllowed(req.URL.Hostname(), sbx.NetAllowList) {
				return fmt.Errorf("redirect to %s refused by policy", req.URL.Hostname())
			}
			return nil
		},
	}
	resp, err := client.Get(u.String())
	if err != nil {
		return hostHTTPEnvelope{Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return hostHTTPEnvelope{Error: fmt.Sprintf("read body: %v", err)}
	}
	return hostHTTPEnvelope{Status: resp.StatusCode, Body: string(body)}
}

// readGuestString copies a (ptr, len) string out of the caller's memory.
func readGuestString(caller *wasmtime.Caller, ptr, size int32) (string, bool) {
	ext := caller.GetExport("memory")
	if ext == nil {
		return "", false
	}
	mem := ext.Memory()
	if mem == nil {
		return "", false
	}
	data := mem.UnsafeData(caller)
	if ptr < 0 || size < 0 || int64(ptr)+int64(size) > int64(len(data)) {
		return "", false
	}
	out := make([]byte, size)
	copy(out, data[ptr:ptr+size])
	return string(out), true
}

// writeEnvelope serialises the envelope into guest memory via the
// guest's allocate export and returns (ptr << 32) | len. Returns 0 when
// the guest does not expose the ABI needed to receive it.
func writeEnvelope(caller *wasmtime.Caller, env hostHTTPEnvelope) int64 {
	payload, err := json.Marshal(env)
	if err != nil {
		return 0
	}
	ptr, ok := writeGuestBytes(caller, payload)
	if !ok {
		return 0
	}
	return int64(uint64(uint32(ptr))<<32 | uint64(uint32(len(payload))))
}

func writeGuestBytes(caller *wasmtime.Caller, payload []byte) (int32, bool) {
	allocExt := caller.GetExport("allocate")
	memExt := caller.GetExport("memory")
	if allocExt == nil || memExt == nil {
		return 0, false
	}
	alloc := allocExt.Func()
	mem := memExt.Memory()
	if alloc == nil || mem == nil {
		return 0, false
	}
	ret, err := alloc.Call(caller, int32(len(payload)))
	if err != nil {
		return 0, false
	}
	ptr, ok := ret.(int32)
	if !ok {
		return 0, false
	}
	data := mem.UnsafeData(caller)
	if ptr < 0 || int64(ptr)+int64(len(payload)) > int64(len(data)) {
		return 0, false
	}
	copy(data[ptr:], payload)
	return ptr, true
}
