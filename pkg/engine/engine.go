// Package engine wraps the Wasmtime runtime: one shared Engine compiles
// tool modules, and per-call Sessions own the store, fuel budget, memory
// limiter, epoch deadline, and WASI wiring. The Engine is immutable after
// construction and safe to share; compiled Modules are shared through the
// component cache and never mutated.
package engine

import (
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v29"

	"github.com/kamitools/kami/pkg/types"
)

// Config controls engine-wide features.
type Config struct {
	// ConsumeFuel enables per-store instruction metering.
	ConsumeFuel bool
	// EpochInterruption enables deadline traps driven by IncrementEpoch.
	EpochInterruption bool
}

// DefaultConfig enables fuel metering and epoch interruption, the
// production posture.
func DefaultConfig() Config {
	return Config{ConsumeFuel: true, EpochInterruption: true}
}

// Engine is the shared compilation and execution engine.
type Engine struct {
	inner *wasmtime.Engine
	cfg   Config
}

// New creates an Engine with the given feature set.
func New(cfg Config) *Engine {
	wc := wasmtime.NewConfig()
	wc.SetConsumeFuel(cfg.ConsumeFuel)
	wc.SetEpochInterruption(cfg.EpochInterruption)
	return &Engine{inner: wasmtime.NewEngineWithConfig(wc), cfg: cfg}
}

// Config returns the engine feature set.
func (e *Engine) Config() Config { return e.cfg }

// IncrementEpoch advances the engine epoch by one tick. Any store whose
// deadline has passed traps at its next instruction boundary. Called by
// the executor's preemption task.
func (e *Engine) IncrementEpoch() { e.inner.IncrementEpoch() }

// Module is a compiled, uninstantiated tool artifact. Shareable across
// concurrent executions; holds no mutable state.
type Module struct {
	inner  *wasmtime.Module
	engine *Engine
}

// Compile compiles a module from raw WASM bytes.
func (e *Engine) Compile(wasmBytes []byte) (*Module, error) {
	m, err := wasmtime.NewModule(e.inner, wasmBytes)
	if err != nil {
		return nil, compileError(err)
	}
	return &Module{inner: m, engine: e}, nil
}

// CompileFile compiles a module from a file on disk.
func (e *Engine) CompileFile(path string) (*Module, error) {
	m, err := wasmtime.NewModuleFromFile(e.inner, path)
	if err != nil {
		return nil, compileError(err)
	}
	return &Module{inner: m, engine: e}, nil
}

// compileError classifies a compilation failure. An unknown import means
// the tool expects a host capability this runtime does not provide, which
// deserves a different remediation than a corrupt binary.
func compileError(err error) error {
	kerr := types.Internal("failed to compile WASM module: %v", err).WithCause(err)
	if strings.Contains(err.Error(), "unknown import") {
		return kerr.
			WithHint("the tool imports a host capability this runtime does not provide").
			WithFix("rebuild the tool against the kami host interface, or upgrade the runtime")
	}
	return kerr.
		WithHint("the file is not a valid WebAssembly module").
		WithFix("reinstall the tool to restore an intact binary")
}

// IsInterrupt reports whether an execution error was caused by an epoch
// deadline trap.
func IsInterrupt(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "interrupt") || strings.Contains(msg, "epoch deadline")
}

// IsFuelExhausted reports whether an execution error was caused by the
// fuel budget running out.
func IsFuelExhausted(err error) bool {
	return err != nil && strings.Contains(err.Error(), "fuel")
}
