package hook

import (
	"syscall"
)

// setpgid marks cmd to run as the leader of a new process group, so the
// invoker can signal the whole group a hook or RUN child may have spawned,
// not just the direct child. Grounded on pkg/supervise/supervisor.go's
// startService and cmd/devctl/cmds/wrap_service.go's Setpgid use.
func setpgid(attrs *syscall.SysProcAttr) *syscall.SysProcAttr {
	if attrs == nil {
		attrs = &syscall.SysProcAttr{}
	}
	attrs.Setpgid = true
	return attrs
}

// signalGroup sends sig to the process group rooted at pid. If the group
// can't be resolved (already reaped, or never had its own group), it
// falls back to signalling the pid directly.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return syscall.Kill(pid, sig)
	}
	return syscall.Kill(-pgid, sig)
}

// killGroup is signalGroup(pid, SIGKILL), tolerating ESRCH (already gone).
func killGroup(pid int) error {
	err := signalGroup(pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// alive reports whether pid still refers to a live (non-reaped) process.
// Grounded on the teacher's pkg/state.ProcessAlive.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}
