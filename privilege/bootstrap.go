// Package privilege makes sure vnetns runs with the capabilities it needs,
// relaunching itself through sudo otherwise, and keeps track of the user who
// originally invoked it.
package privilege

import (
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"vnetns/errs"
)

// SudoUserEnv names the environment variable in which sudo passes on the
// name of the invoking user.
const SudoUserEnv = "SUDO_USER"

// Privileged reports whether the calling task holds the effective
// capabilities to create network namespaces (CAP_SYS_ADMIN) and to change
// file ownership (CAP_CHOWN).
func Privileged() (bool, error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false, err
	}
	has := func(c uint) bool {
		return data[c/32].Effective&(1<<(c%32)) != 0
	}
	return has(unix.CAP_SYS_ADMIN) && has(unix.CAP_CHOWN), nil
}

// bootstrapper carries the operating system hooks of Bootstrap.
type bootstrapper struct {
	privileged func() (bool, error)
	executable func() (string, error)
	run        func(argv []string) error
	exit       func(code int)
	lookupEnv  func(key string) (string, bool)
	geteuid    func() int
}

var system = bootstrapper{
	privileged: Privileged,
	executable: os.Executable,
	run: func(argv []string) error {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
	exit:      os.Exit,
	lookupEnv: os.LookupEnv,
	geteuid:   unix.Geteuid,
}

// Bootstrap must run once at process start with the process arguments. When
// the process lacks privileges, Bootstrap relaunches the whole program with
// the same arguments via "sudo -E", waits for it and exits the unprivileged
// process successfully; it doesn't return in this case. An already elevated
// process lacking privileges fails instead of relaunching again. Otherwise it returns
// the identity of the invoking user, warning when running as root directly
// since the invoking user is unknown then.
func Bootstrap(args []string) (*Identity, error) {
	return system.bootstrap(args)
}

func (b bootstrapper) bootstrap(args []string) (*Identity, error) {
	privileged, err := b.privileged()
	if err != nil {
		return nil, errs.Wrapf(errs.ErrPrivilegeRequired, err, "cannot determine capabilities")
	}
	if !privileged {
		// Root or a sudo child that still lacks capabilities, such as root
		// in a container; sudo would only lead here again.
		if _, sudoed := b.lookupEnv(SudoUserEnv); sudoed || b.geteuid() == 0 {
			return nil, errs.Wrapf(errs.ErrPrivilegeRequired, nil,
				"running elevated but without CAP_SYS_ADMIN and CAP_CHOWN")
		}
		log.Info("calling sudo for elevated privileges, current user will be used as default user")
		argv, err := b.sudoArgv(args)
		if err != nil {
			return nil, err
		}
		log.WithField("args", argv).Debug("relaunching")
		if err := b.run(argv); err != nil {
			if _, exited := err.(*exec.ExitError); !exited {
				return nil, errs.Wrapf(errs.ErrPrivilegeRequired, err, "cannot relaunch with sudo")
			}
		}
		b.exit(0)
		return nil, errs.Wrapf(errs.ErrPrivilegeRequired, nil, "relaunched with sudo")
	}
	if _, ok := b.lookupEnv(SudoUserEnv); !ok {
		log.Warn("running vnetns as root user directly, the invoking user is unknown")
	}
	return resolveIdentity(b.lookupEnv)
}

func (b bootstrapper) sudoArgv(args []string) ([]string, error) {
	exe, err := b.executable()
	if err != nil {
		if len(args) == 0 {
			return nil, errs.Wrapf(errs.ErrPrivilegeRequired, err, "cannot locate own executable")
		}
		exe = args[0]
	}
	argv := []string{"sudo", "-E", exe}
	if len(args) > 1 {
		argv = append(argv, args[1:]...)
	}
	return argv, nil
}
