package network

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netns"

	"vnetns/errs"
)

// NetnsDir is where iproute2 and vishvananda/netns bind-mount named network
// namespaces.
const NetnsDir = "/var/run/netns"

// NamespaceManager lists, creates and deletes named network namespaces.
type NamespaceManager interface {
	List(ctx context.Context) ([]string, error)
	Create(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
}

// NetnsManager manages named network namespaces in-process using
// vishvananda/netns, honoring the iproute2 conventions.
type NetnsManager struct {
	// Dir overrides NetnsDir for listing.
	Dir string
}

func (m NetnsManager) dir() string {
	if m.Dir != "" {
		return m.Dir
	}
	return NetnsDir
}

// List implements NamespaceManager. A missing namespace directory means
// that no named namespace has been created since boot.
func (m NetnsManager) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(m.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot list network namespaces")
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	log.WithField("namespaces", names).Debug("existing namespaces")
	return names, nil
}

// Create implements NamespaceManager. netns.NewNamed switches the calling
// thread into the new namespace, so the thread is locked and switched back
// afterwards.
func (m NetnsManager) Create(ctx context.Context, name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origns, err := netns.Get()
	if err != nil {
		return errs.Wrapf(errs.ErrQueryFailed, err, "cannot get current network namespace")
	}
	defer origns.Close()

	handle, err := netns.NewNamed(name)
	if err != nil {
		return err
	}
	defer handle.Close()
	if err := netns.Set(origns); err != nil {
		// Stuck in the new namespace: keep the thread locked so that the
		// runtime throws it away when the goroutine ends.
		runtime.LockOSThread()
		return err
	}
	log.WithField("namespace", name).Info("created network namespace")
	return nil
}

// Delete implements NamespaceManager.
func (m NetnsManager) Delete(ctx context.Context, name string) error {
	if err := netns.DeleteNamed(name); err != nil {
		return errs.Wrapf(errs.ErrDeletionFailed, err, "cannot delete network namespace %s", name)
	}
	log.WithField("namespace", name).Info("deleted network namespace")
	return nil
}

// IPRouteManager manages named network namespaces through the iproute2 "ip"
// tool.
type IPRouteManager struct{}

// List implements NamespaceManager. "ip netns list" may append the
// namespace id, as in "vpn1 (id: 3)", so only the first column is used.
func (IPRouteManager) List(ctx context.Context) ([]string, error) {
	out, err := runCommand(ctx, "ip", "netns", "list")
	if err != nil {
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot list network namespaces")
	}
	return ParseNetnsList(string(out)), nil
}

// ParseNetnsList returns the namespace names from "ip netns list" output.
func ParseNetnsList(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	sort.Strings(names)
	return names
}

// Create implements NamespaceManager.
func (IPRouteManager) Create(ctx context.Context, name string) error {
	if _, err := runCommand(ctx, "ip", "netns", "add", name); err != nil {
		return err
	}
	log.WithField("namespace", name).Info("created network namespace")
	return nil
}

// Delete implements NamespaceManager.
func (IPRouteManager) Delete(ctx context.Context, name string) error {
	if _, err := runCommand(ctx, "ip", "netns", "delete", name); err != nil {
		return errs.Wrapf(errs.ErrDeletionFailed, err, "cannot delete network namespace %s", name)
	}
	log.WithField("namespace", name).Info("deleted network namespace")
	return nil
}

// Exists reports whether a named network namespace called name exists.
func Exists(ctx context.Context, m NamespaceManager, name string) (bool, error) {
	names, err := m.List(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// EnterNamespace switches the calling goroutine's locked OS thread into the
// named network namespace. The returned function switches back and unlocks
// the thread; it must be called on the same goroutine.
//
//	leave, err := EnterNamespace("vpn")
//	if err != nil { ... }
//	defer leave()
func EnterNamespace(name string) (func(), error) {
	runtime.LockOSThread()
	origns, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot get current network namespace")
	}
	target, err := netns.GetFromName(name)
	if err != nil {
		origns.Close()
		runtime.UnlockOSThread()
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot open network namespace %s", name)
	}
	defer target.Close()
	if err := netns.Set(target); err != nil {
		origns.Close()
		runtime.UnlockOSThread()
		return nil, err
	}
	return func() {
		defer origns.Close()
		if err := netns.Set(origns); err != nil {
			// Leave the thread locked; the runtime drops it with the goroutine.
			log.Errorf("cannot switch back from network namespace %s: %v", name, err)
			return
		}
		runtime.UnlockOSThread()
	}, nil
}
