// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package supervisor implements the master/worker process topology: a
// master forks N OS-process workers, re-execing the same binary with
// an environment variable marking it as a worker, and coordinates
// graceful-restart and rolling-reload signals between them.
package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wingedpig/ipintel/pkg/logging"
)

// inheritedListenerFD is the file descriptor a worker's listening
// socket arrives on, via os/exec's ExtraFiles (fd 0-2 are stdio).
const inheritedListenerFD = 3

// InheritedListener reconstructs the shared listening socket a worker
// receives from its master, opened once and duplicated into every
// worker's ExtraFiles so a rolling reload never has a window with no
// listener bound to the port.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(uintptr(inheritedListenerFD), "listener")
	if f == nil {
		return nil, fmt.Errorf("supervisor: fd %d not open", inheritedListenerFD)
	}
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("supervisor: reconstruct listener: %w", err)
	}
	return ln, nil
}

// WorkerEnvVar marks a re-exec'd process as a worker rather than the
// master; its value is the worker's 0-based index.
const WorkerEnvVar = "IPINTEL_WORKER_INDEX"

// Master forks and supervises N worker processes.
type Master struct {
	BinaryPath string
	Args       []string
	Workers    int
	PIDFile    string
	Log        *logging.Logger

	// ListenerFile, if set, is duplicated into every worker's file
	// descriptor 3 (via os/exec's ExtraFiles) so workers share one
	// listening socket instead of each binding their own port.
	ListenerFile *os.File

	mu      sync.Mutex
	workers []*workerProc
}

type workerProc struct {
	index int
	cmd   *exec.Cmd
}

// NewMaster creates a Master, clamping Workers to the host's CPU count.
func NewMaster(binaryPath string, args []string, workers int, pidFile string, log *logging.Logger) *Master {
	if workers <= 0 {
		workers = 1
	}
	if cpu := runtime.NumCPU(); workers > cpu {
		workers = cpu
	}
	return &Master{BinaryPath: binaryPath, Args: args, Workers: workers, PIDFile: pidFile, Log: log}
}

// Run writes the master's PID file, forks all workers, and blocks
// handling SIGUSR2 (rolling reload) and SIGCHLD (worker death) until
// ctx-equivalent shutdown via SIGTERM/SIGINT.
func (m *Master) Run() error {
	if err := m.writePIDFile(); err != nil {
		return fmt.Errorf("supervisor: write pid file: %w", err)
	}
	defer os.Remove(m.PIDFile)

	for i := 0; i < m.Workers; i++ {
		if err := m.forkWorker(i); err != nil {
			return fmt.Errorf("supervisor: fork worker %d: %w", i, err)
		}
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT, syscall.SIGCHLD)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR2:
			m.rollingReload()
		case syscall.SIGCHLD:
			m.reapAndReplace()
		case syscall.SIGTERM, syscall.SIGINT:
			m.shutdown()
			return nil
		}
	}
	return nil
}

func (m *Master) writePIDFile() error {
	return os.WriteFile(m.PIDFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// forkWorker re-execs the master binary with WorkerEnvVar set, placing
// the child in its own process group so a signal to the master doesn't
// also land on its children.
func (m *Master) forkWorker(index int) error {
	cmd := exec.Command(m.BinaryPath, m.Args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", WorkerEnvVar, index))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.ListenerFile != nil {
		cmd.ExtraFiles = []*os.File{m.ListenerFile}
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	wp := &workerProc{index: index, cmd: cmd}

	m.mu.Lock()
	if m.workers == nil {
		m.workers = make([]*workerProc, m.Workers)
	}
	m.workers[index] = wp
	m.mu.Unlock()

	if m.Log != nil {
		m.Log.Infof("supervisor: started worker %d pid=%d", index, cmd.Process.Pid)
	}
	return nil
}

// reloadStagger is the pause between signalling successive workers
// during a rolling reload. SIGUSR1 delivery and an Engine swap are
// both fast (microseconds), so this is sized to spread the brief
// snapshot-load CPU spike across workers, not to wait for an ack --
// a forked worker has no cheap channel back to the master to report
// one.
const reloadStagger = 500 * time.Millisecond

// rollingReload signals each worker in turn with SIGUSR1 so the
// remaining workers absorb its load while it swaps in a fresh Engine,
// pausing briefly between workers to spread out the reload cost.
func (m *Master) rollingReload() {
	m.mu.Lock()
	workers := append([]*workerProc(nil), m.workers...)
	m.mu.Unlock()

	for i, wp := range workers {
		if wp == nil || wp.cmd.Process == nil {
			continue
		}
		if m.Log != nil {
			m.Log.Infof("supervisor: rolling reload signalling worker %d", wp.index)
		}
		if err := wp.cmd.Process.Signal(syscall.SIGUSR1); err != nil {
			if m.Log != nil {
				m.Log.Warnf("supervisor: signal worker %d failed: %v", wp.index, err)
			}
			continue
		}
		if i < len(workers)-1 {
			time.Sleep(reloadStagger)
		}
	}
}

// reapAndReplace collects any exited children and forks replacements.
func (m *Master) reapAndReplace() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		m.mu.Lock()
		var dead *workerProc
		for _, wp := range m.workers {
			if wp != nil && wp.cmd.Process != nil && wp.cmd.Process.Pid == pid {
				dead = wp
				break
			}
		}
		m.mu.Unlock()

		if dead == nil {
			continue
		}
		if m.Log != nil {
			m.Log.Warnf("supervisor: worker %d (pid %d) exited, forking replacement", dead.index, pid)
		}
		if err := m.forkWorker(dead.index); err != nil && m.Log != nil {
			m.Log.Errorf("supervisor: failed to replace worker %d: %v", dead.index, err)
		}
	}
}

func (m *Master) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wp := range m.workers {
		if wp == nil || wp.cmd.Process == nil {
			continue
		}
		_ = unix.Kill(-wp.cmd.Process.Pid, unix.SIGTERM)
	}
}

// IsWorker reports whether the current process was forked as a worker,
// returning its 0-based index.
func IsWorker() (index int, ok bool) {
	v, present := os.LookupEnv(WorkerEnvVar)
	if !present {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(v, "%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

// WorkerSignals lets a worker process wait for SIGUSR1 (graceful
// reload request from the master) without importing os/signal
// boilerplate at every call site.
type WorkerSignals struct {
	ch chan os.Signal
}

// NewWorkerSignals registers for SIGUSR1.
func NewWorkerSignals() *WorkerSignals {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	return &WorkerSignals{ch: ch}
}

// Wait blocks until the next SIGUSR1.
func (w *WorkerSignals) Wait() {
	<-w.ch
}
