package network

import (
	"context"
	"os"
	"path/filepath"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

var _ = Describe("named network namespaces", func() {

	ctx := context.Background()

	When("listing the bind-mount directory", func() {

		It("lists namespace files only", func() {
			dir := GinkgoT().TempDir()
			for _, name := range []string{"vpn2", "vpn1"} {
				Expect(os.WriteFile(filepath.Join(dir, name), nil, 0644)).To(Succeed())
			}
			Expect(os.Mkdir(filepath.Join(dir, "sub"), 0755)).To(Succeed())
			Expect(NetnsManager{Dir: dir}.List(ctx)).To(Equal([]string{"vpn1", "vpn2"}))
		})

		It("treats a missing directory as no namespaces", func() {
			m := NetnsManager{Dir: filepath.Join(GinkgoT().TempDir(), "netns")}
			Expect(m.List(ctx)).To(BeEmpty())
			Expect(Exists(ctx, m, "vpn")).To(BeFalse())
		})

	})

	When("privileged", Ordered, func() {

		var name string

		BeforeAll(func() {
			if unix.Geteuid() != 0 {
				Skip("needs root")
			}
			name = "vnetns-test-" + petname.Generate(2, "-")
			DeferCleanup(func() {
				_ = NetnsManager{}.Delete(ctx, name)
			})
		})

		It("creates a namespace and stays in the current one", func() {
			before := Successful(os.Readlink("/proc/thread-self/ns/net"))
			Expect(NetnsManager{}.Create(ctx, name)).To(Succeed())
			Expect(os.Readlink("/proc/thread-self/ns/net")).To(Equal(before))
			Expect(Exists(ctx, NetnsManager{}, name)).To(BeTrue())
		})

		It("connects the namespace", func() {
			b := Successful(AllocateSubnet(ctx, NetlinkSource{}))
			ep := NewEndpoint(name, b)
			Expect(ep.Setup(ctx)).To(Succeed())
			DeferCleanup(func() { Expect(ep.Teardown(ctx)).To(Succeed()) })

			Expect(NetlinkSource{}.VethAddrs(ctx)).To(ContainElement(b.HostCIDR()))
			Expect(AllocateSubnet(ctx, NetlinkSource{})).NotTo(Equal(b))

			leave := Successful(EnterNamespace(name))
			peer, err := netlink.LinkByName(ep.PeerIf)
			leave()
			Expect(err).NotTo(HaveOccurred())
			Expect(peer.Type()).To(Equal("veth"))
		})

		It("deletes the namespace", func() {
			Expect(NetnsManager{}.Delete(ctx, name)).To(Succeed())
			Expect(Exists(ctx, NetnsManager{}, name)).To(BeFalse())
			Expect(NetnsManager{}.Delete(ctx, name)).NotTo(Succeed())
		})

	})

})
