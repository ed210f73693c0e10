// Package subprocess implements the process spawner (C9, spec §4.9):
// fork/exec with privilege drop, pipe setup for key delivery, and
// exit-status decoding, grounded directly on the Credential/Setsid
// block in lxd-agent/exec.go and the WaitStatus decoding in
// lxd/container_lxc_exec_cmd.go.
package subprocess

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/pam-mount/volmount/coreerr"
)

// defaultPath is the PATH forced on every spawned helper (spec §6:
// "PATH is forced to a known list before executing helpers"),
// matching the built-in list lxd-agent/exec.go falls back to when the
// caller doesn't supply one.
const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Identity names the user a child process should run as (spec §4.9:
// "optionally drops to a named user (setgid then setuid, set HOME and
// USER)").
type Identity struct {
	Uid  uint32
	Gid  uint32
	Home string
	User string
}

// Request describes a child process to spawn.
type Request struct {
	Argv []string
	Env  map[string]string

	WantStdin  bool
	WantStdout bool
	WantStderr bool

	// Identity is nil to stay root.
	Identity *Identity
}

// Process is a spawned child: its pid and whichever pipe ends the
// caller asked for.
type Process struct {
	cmd    *exec.Cmd
	Pid    int
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Spawn forks and execs req.Argv[0] with req.Argv[1:] as arguments,
// installing a fresh session (new session id, chdir "/"), optionally
// dropping privileges, and unconditionally forcing PATH to defaultPath
// even if the caller's Env sets one (spec §4.9, §6).
func Spawn(req Request) (*Process, error) {
	if len(req.Argv) == 0 {
		return nil, coreerr.New(coreerr.SpawnFailed, "empty argv")
	}

	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = "/"

	env := make(map[string]string, len(req.Env)+3)
	for k, v := range req.Env {
		env[k] = v
	}
	env["PATH"] = defaultPath
	if req.Identity != nil {
		env["HOME"] = req.Identity.Home
		env["USER"] = req.Identity.User
	}
	cmd.Env = mapToEnv(env)

	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if req.Identity != nil {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: req.Identity.Uid,
			Gid: req.Identity.Gid,
		}
	}

	proc := &Process{cmd: cmd}

	var err error
	if req.WantStdin {
		proc.Stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, coreerr.Wrap(coreerr.SpawnFailed, "creating stdin pipe", err)
		}
	}
	if req.WantStdout {
		proc.Stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, coreerr.Wrap(coreerr.SpawnFailed, "creating stdout pipe", err)
		}
	}
	if req.WantStderr {
		proc.Stderr, err = cmd.StderrPipe()
		if err != nil {
			return nil, coreerr.Wrap(coreerr.SpawnFailed, "creating stderr pipe", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, coreerr.Wrap(coreerr.SpawnFailed, "starting "+req.Argv[0], err)
	}
	proc.Pid = cmd.Process.Pid

	return proc, nil
}

// WriteAndClose writes payload to the child's stdin and closes it,
// tolerating the child exiting early (a broken pipe is not an error:
// spec §5 — "writers to the key pipe must tolerate the reader exiting
// early"). The Go runtime already treats SIGPIPE on pipe file
// descriptors other than stdout/stderr as SIG_IGN, turning a broken
// pipe into a plain EPIPE error return rather than a delivered signal
// — see DESIGN.md's note on this package. A stdin pipe already closed
// by Wait (the child exited and was reaped) is tolerated the same way.
func (p *Process) WriteAndClose(payload []byte) error {
	defer p.Stdin.Close()

	_, err := p.Stdin.Write(payload)
	if err != nil && err != io.ErrClosedPipe && !isBrokenPipe(err) && !errors.Is(err, os.ErrClosed) {
		return coreerr.Wrap(coreerr.SpawnFailed, "writing to child stdin", err)
	}
	return nil
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

// Wait blocks until the child exits and returns its exit status, the
// same WaitStatus decoding lxd/container_lxc_exec_cmd.go performs.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return -1, coreerr.Wrap(coreerr.SpawnFailed, "waiting for child", err)
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return -1, coreerr.Wrap(coreerr.SpawnFailed, "decoding exit status", err)
	}
	if status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	return status.ExitStatus(), nil
}

// Signal sends sig to the child.
func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func mapToEnv(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
