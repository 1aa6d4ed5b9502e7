package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"vnetns/network"
	"vnetns/privilege"
)

// ExecInNamespace runs command inside the named network namespace, creating
// it when needed, and holds a lock on it for as long as the command runs.
// Afterwards the namespace is torn down unless other holders remain.
func ExecInNamespace(name string, command []string) error {
	ctx := context.Background()
	s, err := setupNamespace(ctx, name, os.Getpid(), command)
	if err != nil {
		return err
	}
	defer env.fixOwnership()
	defer func() {
		if err := s.teardown(ctx); err != nil {
			log.Errorf("cannot tear down namespace %s: %v", name, err)
		}
	}()

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	dropPrivileges(cmd, env.identity)

	if err := startInNamespace(name, cmd); err != nil {
		return err
	}
	log.WithFields(log.Fields{"namespace": name, "pid": cmd.Process.Pid}).Info("started command")

	// The command shares the terminal and gets interrupts itself; we stay
	// around to clean up after it.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer func() {
		signal.Stop(signals)
		close(signals)
	}()
	go func() {
		for sig := range signals {
			if sig != syscall.SIGINT {
				_ = cmd.Process.Signal(sig)
			}
		}
	}()

	err = cmd.Wait()
	if _, exited := err.(*exec.ExitError); exited {
		log.Infof("command exited: %v", err)
		return nil
	}
	return err
}

// startInNamespace starts cmd from an OS thread switched into the named
// network namespace, so the forked command inherits that namespace.
func startInNamespace(name string, cmd *exec.Cmd) error {
	leave, err := network.EnterNamespace(name)
	if err != nil {
		return err
	}
	defer leave()
	return cmd.Start()
}

// dropPrivileges makes cmd run as the invoking user when vnetns was elevated
// through sudo.
func dropPrivileges(cmd *exec.Cmd, id *privilege.Identity) {
	if id == nil || !id.Elevated {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid: uint32(id.UID),
			Gid: uint32(id.GID),
		},
	}
	cmd.Env = append(os.Environ(), "HOME="+id.Home, "USER="+id.Name, "LOGNAME="+id.Name)
}
