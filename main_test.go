package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"

	"vnetns/config"
	"vnetns/network"
	"vnetns/privilege"
)

const unusedPID = 1 << 30

var _ = Describe("vnetns command", func() {

	It("has all commands", func() {
		app := newApp()
		var names []string
		for _, cmd := range app.Commands {
			names = append(names, cmd.Name)
		}
		Expect(names).To(ConsistOf("gc", "alloc", "ps", "create", "exec", "rm", "chown"))
	})

	It("checks command line overrides", func() {
		cfg := config.DefaultConfig()
		cfg.RegistryRoot = "/run/vnetns/locks"
		Expect(applyOverrides(cfg, "", "")).To(Succeed())
		Expect(cfg.Backend).To(Equal(config.BackendNetlink))
		Expect(cfg.RegistryRoot).To(Equal("/run/vnetns/locks"))

		Expect(applyOverrides(cfg, config.BackendIPRoute2, "/tmp/locks")).To(Succeed())
		Expect(cfg.Backend).To(Equal(config.BackendIPRoute2))
		Expect(cfg.RegistryRoot).To(Equal("/tmp/locks"))

		Expect(applyOverrides(cfg, "bogus", "")).To(MatchError(ContainSubstring(`unknown backend "bogus"`)))
		cfg.Backend = config.BackendNetlink
		Expect(applyOverrides(cfg, "", "relative/locks")).To(MatchError(ContainSubstring("not absolute")))
	})

	It("names namespaces", func() {
		Expect(namespaceName("vpn")).To(Equal("vpn"))
		Expect(namespaceName("")).To(HavePrefix("vn-"))
	})

	When("environment is set up", func() {

		var id *privilege.Identity

		BeforeEach(func() {
			id = &privilege.Identity{Name: "alice", UID: 1000, GID: 1000, Home: GinkgoT().TempDir()}
			cfg := config.DefaultConfig()
			cfg.RegistryRoot = filepath.Join(GinkgoT().TempDir(), "locks")
			cfg.Backend = config.BackendIPRoute2
			oldenv := env
			env = newEnvironment(id, cfg)
			DeferCleanup(func() { env = oldenv })
		})

		It("picks the configured backend", func() {
			Expect(env.addrs).To(BeAssignableToTypeOf(network.IPRouteSource{}))
			Expect(env.namespaces).To(BeAssignableToTypeOf(network.IPRouteManager{}))
			env = newEnvironment(id, &config.Config{Backend: config.BackendNetlink})
			Expect(env.addrs).To(BeAssignableToTypeOf(network.NetlinkSource{}))
			Expect(env.namespaces).To(BeAssignableToTypeOf(network.NetnsManager{}))
		})

		It("configures the reconciler", func() {
			env.config.NamespacePrefix = "vn-"
			rec := env.reconciler()
			Expect(rec.Prefix).To(Equal("vn-"))
			Expect(rec.Settle).To(Equal(env.config.SettleDelay))
			Expect(rec.Registry).To(BeIdenticalTo(env.registry))
		})

		It("lists locks with the liveness of their holders", func() {
			Expect(env.registry.Acquire("vpn1", os.Getpid(), nil)).Error().NotTo(HaveOccurred())
			Expect(os.MkdirAll(env.registry.NamespaceDir("vpn2"), 0755)).To(Succeed())
			Expect(os.WriteFile(env.registry.LockPath("vpn2", unusedPID), nil, 0644)).To(Succeed())

			var out bytes.Buffer
			Expect(ListLocks(&out)).To(Succeed())
			lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
			Expect(lines).To(HaveLen(3))
			Expect(string(lines[0])).To(MatchRegexp(`^NAMESPACE\s+PID\s+ALIVE`))
			Expect(out.String()).To(MatchRegexp(`vpn1\s+` + strconv.Itoa(os.Getpid()) + `\s+true`))
			Expect(out.String()).To(MatchRegexp(`vpn2\s+` + strconv.Itoa(unusedPID) + `\s+false\s+-\s+-\s+-`))
		})

		It("lists nothing without locks", func() {
			var out bytes.Buffer
			Expect(ListLocks(&out)).To(Succeed())
			Expect(out.String()).To(HavePrefix("NAMESPACE"))
			Expect(bytes.Count(out.Bytes(), []byte("\n"))).To(Equal(1))
		})

		It("reads the subnet of other holders", func() {
			Expect(env.registry.Acquire("vpn1", unusedPID, nil)).Error().NotTo(HaveOccurred())
			Expect(subnetOf("vpn1")).To(BeEmpty())
			Expect(env.registry.Acquire("vpn1", os.Getpid(), nil)).Error().NotTo(HaveOccurred())
			lock := Successful(env.registry.Acquire("vpn1", 4242, nil))
			Expect(os.WriteFile(lock.Path(), []byte(`{"subnet":"10.200.7.1/24"}`), 0644)).To(Succeed())
			Expect(subnetOf("vpn1")).To(Equal("10.200.7.1/24"))
		})
	})

	It("runs commands as the invoking user when elevated", func() {
		cmd := &exec.Cmd{}
		dropPrivileges(cmd, &privilege.Identity{Name: "alice", UID: 1000, GID: 100, Home: "/home/alice"})
		Expect(cmd.SysProcAttr).To(BeNil())

		dropPrivileges(cmd, &privilege.Identity{Name: "alice", UID: 1000, GID: 100, Home: "/home/alice", Elevated: true})
		Expect(cmd.SysProcAttr).NotTo(BeNil())
		Expect(cmd.SysProcAttr.Credential.Uid).To(Equal(uint32(1000)))
		Expect(cmd.SysProcAttr.Credential.Gid).To(Equal(uint32(100)))
		Expect(cmd.Env).To(ContainElement("HOME=/home/alice"))
	})

})
