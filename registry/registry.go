// Package registry keeps the durable record of which processes hold which
// network namespaces.
//
// The registry is a directory tree: one subdirectory per namespace name, and
// inside it one file per holding process, named by the process id in
// decimal. A namespace holder creates its lock when it starts and removes it
// on a clean exit; the reconciler removes locks whose process died. Reading
// the registry is a pure query and never modifies it.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"

	"vnetns/errs"
)

// Registry is a lock directory rooted at Root.
type Registry struct {
	Root string
}

// New returns the registry rooted at root. The directory is created lazily
// when the first lock is acquired.
func New(root string) *Registry {
	return &Registry{Root: root}
}

// ParsePID returns the process id encoded in a lock file name. Only plain
// unsigned decimal numbers are lock names.
func ParsePID(name string) (int, bool) {
	pid, err := strconv.ParseUint(name, 10, 31)
	if err != nil || pid == 0 {
		return 0, false
	}
	return int(pid), true
}

// NamespaceDir returns the directory holding the locks of namespace ns.
func (r *Registry) NamespaceDir(ns string) string {
	return filepath.Join(r.Root, ns)
}

// LockPath returns the file name of the lock of pid on namespace ns.
func (r *Registry) LockPath(ns string, pid int) string {
	return filepath.Join(r.Root, ns, strconv.Itoa(pid))
}

// List returns the process ids holding each namespace, sorted ascending.
// Only regular files directly inside a namespace directory whose names are
// process ids are locks; everything else, including files directly below
// the root or deeper down, is skipped. A missing root is an empty
// registry.
func (r *Registry) List() (map[string][]int, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]int{}, nil
		}
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot read lock registry %s", r.Root)
	}
	locks := map[string][]int{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pids, err := r.Holders(entry.Name())
		if err != nil {
			return nil, err
		}
		if len(pids) == 0 {
			continue
		}
		locks[entry.Name()] = pids
	}
	return locks, nil
}

// Holders returns the process ids holding namespace ns, sorted ascending.
func (r *Registry) Holders(ns string) ([]int, error) {
	dir := r.NamespaceDir(ns)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot read locks of namespace %s", ns)
	}
	var pids []int
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		pid, ok := ParsePID(entry.Name())
		if !ok {
			log.WithField("file", filepath.Join(dir, entry.Name())).Debug("not a lock file")
			continue
		}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

// Locks returns every lock in the registry, ordered by namespace name and
// then by process id.
func (r *Registry) Locks() ([]Lock, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for ns := range entries {
		names = append(names, ns)
	}
	sort.Strings(names)
	var locks []Lock
	for _, ns := range names {
		for _, pid := range entries[ns] {
			locks = append(locks, r.Lock(ns, pid))
		}
	}
	return locks, nil
}

// Namespaces returns the names of all namespaces with at least one lock,
// regardless of whether the locking processes are still alive.
func (r *Registry) Namespaces() (map[string]bool, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for ns := range entries {
		names[ns] = true
	}
	return names, nil
}

// Remove deletes the whole lock directory of namespace ns, including locks
// of other processes. It is used when the namespace itself is torn down.
func (r *Registry) Remove(ns string) error {
	if err := os.RemoveAll(r.NamespaceDir(ns)); err != nil {
		return errs.Wrapf(errs.ErrDeletionFailed, err, "cannot remove locks of namespace %s", ns)
	}
	return nil
}
