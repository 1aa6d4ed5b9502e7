package registry

import (
	"encoding/json"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"vnetns/errs"
)

// acquireAttempts bounds the retries when a concurrent sweep removes the
// freshly created namespace directory before the lock file lands in it.
const acquireAttempts = 5

// Lock is the claim of process PID on namespace Namespace.
type Lock struct {
	Namespace string
	PID       int

	registry *Registry
}

// Info is the informational content of a lock file. Only the file name
// matters for liveness; the content is for humans listing the registry.
type Info struct {
	Namespace   string   `json:"namespace"`
	PID         int      `json:"pid"`
	Subnet      string   `json:"subnet,omitempty"`
	Command     []string `json:"command,omitempty"`
	CreatedTime string   `json:"createTime"`
}

// Lock returns the lock of pid on namespace ns, whether or not it exists.
func (r *Registry) Lock(ns string, pid int) Lock {
	return Lock{Namespace: ns, PID: pid, registry: r}
}

// Acquire records that process pid holds namespace ns. The optional info is
// stored as the lock's content.
func (r *Registry) Acquire(ns string, pid int, info *Info) (*Lock, error) {
	if info == nil {
		info = &Info{}
	}
	info.Namespace = ns
	info.PID = pid
	if info.CreatedTime == "" {
		info.CreatedTime = time.Now().Format("2006-01-02 15:04:05")
	}
	content, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	path := r.LockPath(ns, pid)
	for attempt := 1; ; attempt++ {
		if err = os.MkdirAll(r.NamespaceDir(ns), 0755); err != nil {
			return nil, err
		}
		err = os.WriteFile(path, content, 0644)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) || attempt >= acquireAttempts {
			return nil, err
		}
		log.WithField("lock", path).Debug("lock directory vanished, retrying")
	}
	log.WithFields(log.Fields{"namespace": ns, "pid": pid}).Debug("acquired lock")
	lock := r.Lock(ns, pid)
	return &lock, nil
}

// Path returns the lock's file name.
func (l *Lock) Path() string {
	return l.registry.LockPath(l.Namespace, l.PID)
}

// Release removes the lock, and the namespace's lock directory if this was
// its last lock. A lock that is already gone is released.
func (l *Lock) Release() error {
	if err := os.Remove(l.Path()); err != nil && !os.IsNotExist(err) {
		return errs.Wrapf(errs.ErrDeletionFailed, err, "cannot release lock %s", l.Path())
	}
	// Fails when other holders remain, which is fine.
	_ = os.Remove(l.registry.NamespaceDir(l.Namespace))
	log.WithFields(log.Fields{"namespace": l.Namespace, "pid": l.PID}).Debug("released lock")
	return nil
}

// Info reads the informational content of the lock. Locks written by other
// tools may be empty or unreadable, so the returned Info always carries at
// least the namespace and pid.
func (l *Lock) Info() *Info {
	info := &Info{}
	if content, err := os.ReadFile(l.Path()); err == nil && len(content) > 0 {
		if err := json.Unmarshal(content, info); err != nil {
			log.WithField("lock", l.Path()).Debugf("unreadable lock content: %v", err)
		}
	}
	info.Namespace = l.Namespace
	info.PID = l.PID
	return info
}
