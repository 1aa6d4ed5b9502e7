// Package reconcile garbage collects stale lock records and orphaned network
// namespaces by comparing the lock registry with the live process table and
// the live namespace list.
package reconcile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"vnetns/errs"
	"vnetns/network"
	"vnetns/process"
	"vnetns/registry"
)

// DefaultSettle is the pause after sweeping dead locks, giving concurrently
// starting instances time to write their own locks before namespaces are
// checked for orphans.
const DefaultSettle = time.Second

// Reconciler deletes locks of dead processes and namespaces without locks.
// Both sweeps are idempotent.
type Reconciler struct {
	Registry   *registry.Registry
	Processes  process.Table
	Namespaces network.NamespaceManager
	// Prefix limits namespace deletion to names starting with it; empty
	// considers every named namespace of the host.
	Prefix string
	Settle time.Duration
	// Sleep waits for the settle delay; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Summary lists what a reconciliation removed.
type Summary struct {
	RemovedLocks      []registry.Lock
	DeletedNamespaces []string
}

// New returns a reconciler of the host's processes and named namespaces.
func New(reg *registry.Registry, namespaces network.NamespaceManager) *Reconciler {
	return &Reconciler{
		Registry:   reg,
		Processes:  process.System{},
		Namespaces: namespaces,
		Settle:     DefaultSettle,
	}
}

// Run sweeps dead locks and then dead namespaces.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	removed, err := r.SweepDeadLocks(ctx)
	summary.RemovedLocks = removed
	if err != nil {
		return summary, err
	}
	deleted, err := r.SweepDeadNamespaces(ctx)
	summary.DeletedNamespaces = deleted
	return summary, err
}

// SweepDeadLocks removes every lock whose process is not in a fresh process
// table snapshot, then removes namespace directories left empty. Files with
// non-numeric names, and files outside namespace directories, are left
// alone. Removing directories is best effort: a
// directory that just gained a lock simply stays.
func (r *Reconciler) SweepDeadLocks(ctx context.Context) ([]registry.Lock, error) {
	root := r.Registry.Root
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot read lock registry %s", root)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	snapshot, err := r.Processes.Snapshot()
	if err != nil {
		return nil, errs.Ensuref(errs.ErrQueryFailed, err, "cannot read process table")
	}

	log.Debug("cleaning dead lock files")
	var removed []registry.Lock
	var dirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished underneath us, most likely by a concurrent sweep.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root {
				dirs = append(dirs, path)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ns, isLock := namespaceOf(root, path)
		if !isLock {
			return nil
		}
		pid, ok := registry.ParsePID(d.Name())
		if !ok || snapshot.Alive(pid) {
			return nil
		}
		log.WithField("lock", path).Debug("removing lock file")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errs.Wrapf(errs.ErrDeletionFailed, err, "cannot remove lock file %s", path)
		}
		removed = append(removed, r.Registry.Lock(ns, pid))
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Deepest first, so that nested directories empty their parents.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}

	r.sleep()
	return removed, nil
}

func (r *Reconciler) sleep() {
	if r.Settle <= 0 {
		return
	}
	if r.Sleep != nil {
		r.Sleep(r.Settle)
		return
	}
	time.Sleep(r.Settle)
}

// namespaceOf returns the namespace of the file at path when the file sits
// where the registry keeps locks, directly inside a namespace directory.
// Files anywhere else never count as locks, neither here nor in
// registry.List.
func namespaceOf(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." || strings.ContainsRune(rel, filepath.Separator) {
		return "", false
	}
	return rel, true
}

// SweepDeadNamespaces deletes every existing named namespace that has no
// lock at all. The liveness of lock holders is not checked here; that is
// SweepDeadLocks' job, which should run right before. The first failing
// deletion aborts the sweep, as the namespace may still be in use.
func (r *Reconciler) SweepDeadNamespaces(ctx context.Context) ([]string, error) {
	locked, err := r.Registry.Namespaces()
	if err != nil {
		return nil, err
	}
	existing, err := r.Namespaces.List(ctx)
	if err != nil {
		return nil, errs.Ensuref(errs.ErrQueryFailed, err, "cannot list network namespaces")
	}

	var deleted []string
	for _, ns := range existing {
		if locked[ns] || !strings.HasPrefix(ns, r.Prefix) {
			continue
		}
		log.WithField("namespace", ns).Debug("removing dead namespace")
		if err := r.Namespaces.Delete(ctx, ns); err != nil {
			return deleted, errs.Ensuref(errs.ErrDeletionFailed, err, "cannot remove dead namespace %s", ns)
		}
		deleted = append(deleted, ns)
	}
	return deleted, nil
}
