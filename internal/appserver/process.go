package appserver

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// outputBuffer is a goroutine-safe sink for combined stdout+stderr.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ProcessHandle owns one spawned OS process: liveness, captured output, and
// graceful/forced termination. A handle is owned by exactly one ServerManager.
type ProcessHandle struct {
	cmd    *exec.Cmd
	out    *outputBuffer
	done   chan struct{}
	waitMu sync.Mutex
	werr   error
}

// startProcess spawns bin with args in workDir, capturing combined
// stdout+stderr. Failure to spawn at all is surfaced as a ProcError of kind
// ProcSpawnFailed.
func startProcess(bin string, args []string, workDir string) (*ProcessHandle, error) {
	h := &ProcessHandle{out: &outputBuffer{}, done: make(chan struct{})}
	cmd := exec.Command(bin, args...)
	cmd.Dir = workDir
	cmd.Stdout = h.out
	cmd.Stderr = h.out
	if err := cmd.Start(); err != nil {
		return nil, &ProcError{Kind: ProcSpawnFailed, Op: "start " + bin, Err: err}
	}
	h.cmd = cmd
	go func() {
		err := cmd.Wait()
		h.waitMu.Lock()
		h.werr = err
		h.waitMu.Unlock()
		close(h.done)
	}()
	return h, nil
}

// IsRunning reports process liveness without blocking.
func (h *ProcessHandle) IsRunning() bool {
	if h == nil || h.cmd == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// PID returns the OS process id, or 0 if never started.
func (h *ProcessHandle) PID() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Output returns the combined stdout+stderr captured so far. Empty if no
// process was ever started.
func (h *ProcessHandle) Output() string {
	if h == nil || h.out == nil {
		return ""
	}
	return h.out.String()
}

// ExitErr returns the error from Wait once the process has exited, nil while
// it is still running.
func (h *ProcessHandle) ExitErr() error {
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		h.waitMu.Lock()
		defer h.waitMu.Unlock()
		return h.werr
	default:
		return nil
	}
}

// Terminate signals the process: SIGTERM when graceful, SIGKILL otherwise.
// Idempotent: signalling an already-dead process is a no-op.
func (h *ProcessHandle) Terminate(graceful bool) error {
	if !h.IsRunning() {
		return nil
	}
	sig := syscall.SIGKILL
	if graceful {
		sig = syscall.SIGTERM
	}
	if err := h.cmd.Process.Signal(sig); err != nil {
		// Lost the race against exit.
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return &ProcError{Kind: ProcSignalFailed, Op: "signal " + sig.String(), Err: err}
	}
	return nil
}
