package engine

import (
	"os"
	"path/filepath"

	"github.com/bytecodealliance/wasmtime-go/v29"

	"github.com/kamitools/kami/pkg/sandbox"
	"github.com/kamitools/kami/pkg/types"
)

// Session is the per-call execution state: one store, one capability
// context, one fuel budget. A session is owned by exactly one call and
// must be closed when the call returns.
type Session struct {
	store   *wasmtime.Store
	linker  *wasmtime.Linker
	sbx     *sandbox.Context
	limits  types.ResourceLimits
	workDir string

	stdinPath  string
	stdoutPath string
	stderrPath string
}

// NewSession builds a store bound to the engine with:
//   - a memory limiter at max_memory_mb MiB (growth beyond traps),
//   - the full fuel budget pre-charged,
//   - an epoch deadline one tick past the current epoch,
//   - WASI wired from the sandbox context (filtered env, preopened dir,
//     never-inherited stdin),
//   - host functions that consult the context's network allow-list.
//
// input is staged as the guest's stdin for tools using the WASI stdio
// interface; tools exporting the typed run ABI read it from memory
// instead.
func NewSession(e *Engine, sbx *sandbox.Context, limits types.ResourceLimits, input string) (*Session, error) {
	store := wasmtime.NewStore(e.inner)
	store.Limiter(int64(limits.MaxMemoryMB)<<20, -1, -1, -1, -1)

	if e.cfg.ConsumeFuel {
		if err := store.SetFuel(limits.MaxFuel); err != nil {
			return nil, types.Internal("failed to charge fuel budget: %v", err).WithCause(err)
		}
	}
	if e.cfg.EpochInterruption {
		store.SetEpochDeadline(1)
	}

	s := &Session{store: store, sbx: sbx, limits: limits}

	workDir, err := os.MkdirTemp("", "kami-exec-*")
	if err != nil {
		return nil, types.Internal("failed to create session scratch dir: %v", err).WithCause(err)
	}
	s.workDir = workDir

	wasiCfg := wasmtime.NewWasiConfig()

	s.stdinPath = filepath.Join(workDir, "stdin")
	if err := os.WriteFile(s.stdinPath, []byte(input), 0o600); err != nil {
		s.Close()
		return nil, types.Internal("failed to stage guest stdin: %v", err).WithCause(err)
	}
	if err := wasiCfg.SetStdinFile(s.stdinPath); err != nil {
		s.Close()
		return nil, types.Internal("failed to wire guest stdin: %v", err).WithCause(err)
	}

	if sbx.InheritStdout {
		wasiCfg.InheritStdout()
	} else {
		s.stdoutPath = filepath.Join(workDir, "stdout")
		if err := wasiCfg.SetStdoutFile(s.stdoutPath); err != nil {
			s.Close()
			return nil, types.Internal("failed to wire guest stdout: %v", err).WithCause(err)
		}
	}
	if sbx.InheritStderr {
		wasiCfg.InheritStderr()
	} else {
		s.stderrPath = filepath.Join(workDir, "stderr")
		if err := wasiCfg.SetStderrFile(s.stderrPath); err != nil {
			s.Close()
			return nil, types.Internal("failed to wire guest stderr: %v", err).WithCause(err)
		}
	}

	if len(sbx.Env) > 0 {
		keys := make([]string, len(sbx.Env))
		values := make([]string, len(sbx.Env))
		for i, kv := range sbx.Env {
			keys[i], values[i] = kv[0], kv[1]
		}
		wasiCfg.SetEnv(keys, values)
	}

	if sbx.PreopenDir != "" {
		// read-only preopens get read permissions only; write bits are
		// granted solely for fs_access = sandbox.
		dirPerms := wasmtime.DIR_READ
		filePerms := wasmtime.FILE_READ
		if sbx.PreopenWritable {
			dirPerms |= wasmtime.DIR_WRITE
			filePerms |= wasmtime.FILE_WRITE
		}
		if err := wasiCfg.PreopenDir(sbx.PreopenDir, ".", dirPerms, filePerms); err != nil {
			s.Close()
			return nil, types.Internal("failed to preopen sandbox dir %s: %v", sbx.PreopenDir, err).WithCause(err)
		}
	}

	store.SetWasi(wasiCfg)

	linker := wasmtime.NewLinker(e.inner)
	if err := linker.DefineWasi(); err != nil {
		s.Close()
		return nil, types.Internal("failed to define WASI imports: %v", err).WithCause(err)
	}
	if err := registerHostFuncs(linker, sbx); err != nil {
		s.Close()
		return nil, err
	}
	s.linker = linker

	return s, nil
}

// FuelConsumed returns the fuel debited so far: the pre-charged budget
// minus what remains in the store.
func (s *Session) FuelConsumed() uint64 {
	remaining, err := s.store.GetFuel()
	if err != nil || remaining > s.limits.MaxFuel {
		return 0
	}
	return s.limits.MaxFuel - remaining
}

// capturedStdout returns the bytes the guest wrote to stdout, when
// capture was enabled.
func (s *Session) capturedStdout() string {
	if s.stdoutPath == "" {
		return ""
	}
	data, err := os.ReadFile(s.stdoutPath)
	if err != nil {
		return ""
	}
	return string(data)
}

// Close releases the session's scratch directory. The store itself is
// reclaimed with the session.
func (s *Session) Close() {
	if s.workDir != "" {
		_ = os.RemoveAll(s.workDir)
	}
}
