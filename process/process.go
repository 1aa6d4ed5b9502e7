// Package process answers questions about the live process table.
package process

import (
	"errors"
	"io/fs"

	ps "github.com/mitchellh/go-ps"
	procutil "github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"

	"vnetns/errs"
)

// Snapshot is the set of process ids present in the process table at the
// time it was taken. Thread ids are not part of it. It is never cached between reconciliation passes.
type Snapshot map[int]struct{}

// Alive reports whether pid was present when the snapshot was taken.
func (s Snapshot) Alive(pid int) bool {
	_, ok := s[pid]
	return ok
}

// Table is a source of process table snapshots.
type Table interface {
	Snapshot() (Snapshot, error)
}

// System is the Table of the running host.
type System struct{}

// Snapshot implements Table.
func (System) Snapshot() (Snapshot, error) {
	return TakeSnapshot()
}

// TakeSnapshot reads the whole process table once.
func TakeSnapshot() (Snapshot, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot read process table")
	}
	snap := make(Snapshot, len(procs))
	for _, p := range procs {
		snap[p.Pid()] = struct{}{}
	}
	log.WithField("count", len(snap)).Debug("process table snapshot")
	return snap, nil
}

// IsAlive reports whether a process with exactly this id currently exists.
// The table entry for pid is queried directly and its id compared against
// pid, so a lookup never matches on a prefix. Like in a Snapshot, only
// processes count: the id of a non-leading thread is not alive.
func IsAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	p, err := ps.FindProcess(pid)
	if err != nil {
		return false, errs.Wrapf(errs.ErrQueryFailed, err, "cannot query process %d", pid)
	}
	if p == nil || p.Pid() != pid {
		return false, nil
	}
	return leadsThreadGroup(pid)
}

// leadsThreadGroup tells threads, which /proc resolves but doesn't list,
// apart from processes.
func leadsThreadGroup(pid int) (bool, error) {
	proc, err := procutil.NewProcess(int32(pid))
	if err == nil {
		var tgid int32
		if tgid, err = proc.Tgid(); err == nil {
			return tgid == int32(pid), nil
		}
	}
	if errors.Is(err, procutil.ErrorProcessNotRunning) || errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errs.Wrapf(errs.ErrQueryFailed, err, "cannot query thread group of %d", pid)
}

// Executable returns the name of the executable running as pid, or "-" when
// the process is gone or cannot be inspected.
func Executable(pid int) string {
	p, err := procutil.NewProcess(int32(pid))
	if err != nil {
		return "-"
	}
	name, err := p.Name()
	if err != nil || name == "" {
		return "-"
	}
	return name
}
