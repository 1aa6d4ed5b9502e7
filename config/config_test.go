package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"

	"vnetns/privilege"
)

var _ = Describe("configuration", func() {

	var (
		home string
		id   *privilege.Identity
	)

	BeforeEach(func() {
		home = GinkgoT().TempDir()
		id = &privilege.Identity{Name: "alice", Home: home, Elevated: true}
	})

	writeConfig := func(content string) string {
		path := filepath.Join(home, "config.yaml")
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
		return path
	}

	It("uses the invoking user's home when elevated", func() {
		GinkgoT().Setenv("XDG_CONFIG_HOME", "/root/.xdg")
		Expect(BaseDir(id)).To(Equal(filepath.Join(home, ".config")))
		Expect(DefaultPath(id)).To(Equal(filepath.Join(home, ".config", "vnetns", "config.yaml")))
	})

	It("honors XDG_CONFIG_HOME when not elevated", func() {
		GinkgoT().Setenv("XDG_CONFIG_HOME", "/home/alice/.xdg")
		id.Elevated = false
		Expect(AppDir(id)).To(Equal("/home/alice/.xdg/vnetns"))
	})

	It("defaults without a file", func() {
		cfg := Successful(Load(filepath.Join(home, "missing.yaml"), id))
		Expect(cfg.Backend).To(Equal(BackendNetlink))
		Expect(cfg.SettleDelay).To(Equal(time.Second))
		Expect(cfg.NamespacePrefix).To(BeEmpty())
		Expect(cfg.RegistryRoot).To(Equal(filepath.Join(home, ".config", "vnetns", "locks")))
	})

	It("reads a file", func() {
		path := writeConfig(`
registry_root: /run/vnetns/locks
backend: iproute2
namespace_prefix: vn-
settle_delay: 250ms
`)
		cfg := Successful(Load(path, id))
		Expect(cfg).To(Equal(&Config{
			RegistryRoot:    "/run/vnetns/locks",
			Backend:         BackendIPRoute2,
			NamespacePrefix: "vn-",
			SettleDelay:     250 * time.Millisecond,
		}))
	})

	DescribeTable("rejecting invalid files",
		func(content string, msg string) {
			_, err := Load(writeConfig(content), id)
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("unknown field", "colour: blue\n", "field colour not found"),
		Entry("unknown backend", "backend: carrier-pigeon\n", "unknown backend"),
		Entry("negative delay", "settle_delay: -1s\n", "negative settle delay"),
		Entry("relative root", "registry_root: locks\n", "not absolute"),
		Entry("garbage", "backend: [\n", "error parsing configuration"),
	)

})
