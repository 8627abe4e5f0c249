package engine

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v29"

	"github.com/kamitools/kami/pkg/types"
)

// Guest ABI. A tool exposes one of two interfaces:
//
//  1. Typed: exports "memory", "allocate(size) -> ptr", and
//     "run(ptr, len) -> ptr". The returned pointer addresses a 12-byte
//     record {status u32, ptr u32, len u32} (little-endian); status 0
//     carries the tool's JSON output, any other value its error payload.
//     This is the lowered form of run(input: string) -> result<string,
//     string>.
//  2. WASI command: exports "_start"; input arrives on stdin, output
//     leaves on stdout, and a non-zero exit code marks a tool-level
//     failure.
//
// Run prefers the typed interface and falls back to the command form.

// Outcome is the guest-level result: Ok distinguishes the tool's own
// success from its own error payload. Runtime-level failures are
// returned as errors instead.
type Outcome struct {
	Ok      bool
	Content string
}

// resultRecordSize is the byte width of the typed ABI's result record.
const resultRecordSize = 12

// Run instantiates the module in this session's store and invokes it
// with the input string.
func (s *Session) Run(m *Module, input string) (Outcome, error) {
	instance, err := s.linker.Instantiate(s.store, m.inner)
	if err != nil {
		return Outcome{}, instantiationError(err)
	}

	run := instance.GetFunc(s.store, "run")
	alloc := instance.GetFunc(s.store, "allocate")
	memExt := instance.GetExport(s.store, "memory")

	if run != nil && alloc != nil && memExt != nil && memExt.Memory() != nil {
		return s.runTyped(run, alloc, memExt.Memory(), input)
	}

	if start := instance.GetFunc(s.store, "_start"); start != nil {
		return s.runCommand(start)
	}

	return Outcome{}, types.Internal("module exports neither run nor _start").
		WithHint("the binary is not a kami tool").
		WithFix("build the tool with the kami guest SDK so it exports run(input) -> result")
}

func (s *Session) runTyped(run, alloc *wasmtime.Func, mem *wasmtime.Memory, input string) (Outcome, error) {
	inPtr, err := s.allocate(alloc, len(input))
	if err != nil {
		return Outcome{}, err
	}
	data := mem.UnsafeData(s.store)
	if int64(inPtr)+int64(len(input)) > int64(len(data)) {
		return Outcome{}, types.Internal("guest allocate returned an out-of-bounds pointer")
	}
	copy(data[inPtr:], input)

	ret, err := run.Call(s.store, inPtr, int32(len(input)))
	if err != nil {
		return Outcome{}, trapError(err)
	}
	outPtr, ok := ret.(int32)
	if !ok {
		return Outcome{}, types.Internal("run returned %T, want a result pointer", ret)
	}

	// Memory may have grown during the call; re-slice before reading.
	data = mem.UnsafeData(s.store)
	if outPtr < 0 || int64(outPtr)+resultRecordSize > int64(len(data)) {
		return Outcome{}, types.Internal("run returned an out-of-bounds result pointer")
	}
	record := data[outPtr : outPtr+resultRecordSize]
	status := binary.LittleEndian.Uint32(record[0:4])
	strPtr := binary.LittleEndian.Uint32(record[4:8])
	strLen := binary.LittleEndian.Uint32(record[8:12])
	if int64(strPtr)+int64(strLen) > int64(len(data)) {
		return Outcome{}, types.Internal("result string is out of bounds")
	}
	content := string(data[strPtr : strPtr+strLen])

	return Outcome{Ok: status == 0, Content: content}, nil
}

func (s *Session) runCommand(start *wasmtime.Func) (Outcome, error) {
	_, err := start.Call(s.store)
	if err != nil {
		if code, isExit := exitStatus(err); isExit {
			content := strings.TrimRight(s.capturedStdout(), "\n")
			return Outcome{Ok: code == 0, Content: content}, nil
		}
		return Outcome{}, trapError(err)
	}
	return Outcome{Ok: true, Content: strings.TrimRight(s.capturedStdout(), "\n")}, nil
}

func (s *Session) allocate(alloc *wasmtime.Func, size int) (int32, error) {
	ret, err := alloc.Call(s.store, int32(size))
	if err != nil {
		return 0, trapError(err)
	}
	ptr, ok := ret.(int32)
	if !ok || ptr < 0 {
		return 0, types.Internal("guest allocate returned %v", ret)
	}
	return ptr, nil
}

func exitStatus(err error) (int32, bool) {
	var werr *wasmtime.Error
	if errors.As(err, &werr) {
		return werr.ExitStatus()
	}
	return 0, false
}

// instantiationError classifies a failed instantiation. Unknown imports
// surface here for modules linked against missing host interfaces.
func instantiationError(err error) error {
	kerr := types.Internal("failed to instantiate module: %v", err).WithCause(err)
	if strings.Contains(err.Error(), "unknown import") {
		return kerr.
			WithHint("the tool imports a host capability this runtime does not provide").
			WithFix("rebuild the tool against the kami host interface, or upgrade the runtime")
	}
	return kerr
}

// trapError classifies a trap raised during guest execution.
func trapError(err error) error {
	switch {
	case IsInterrupt(err):
		return types.NewError(types.KindTimeout, "execution interrupted by deadline").WithCause(err)
	case IsFuelExhausted(err):
		return types.ResourceExhausted("fuel").
			WithHint("the tool hit its instruction budget").
			WithFix("raise limits.max_fuel in the tool's security policy").
			WithCause(err)
	case strings.Contains(err.Error(), "memory"):
		return types.ResourceExhausted("memory").
			WithHint("the tool tried to grow past max_memory_mb").
			WithFix("raise limits.max_memory_mb in the tool's security policy").
			WithCause(err)
	default:
		return types.Internal("instance trapped: %v", err).WithCause(err)
	}
}
