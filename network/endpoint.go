package network

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// Endpoint is the veth pair bridging a namespace to the root namespace. The
// host end carries the block's gateway address, the peer end lives inside
// the namespace.
type Endpoint struct {
	Namespace string
	Block     Block
	HostIf    string
	PeerIf    string
}

// NewEndpoint names the veth pair of block b for namespace ns. The names
// derive from the block, which is unique among live namespaces, and stay
// within the kernel's 15 character limit.
func NewEndpoint(ns string, b Block) *Endpoint {
	return &Endpoint{
		Namespace: ns,
		Block:     b,
		HostIf:    fmt.Sprintf("vnh%d", b),
		PeerIf:    fmt.Sprintf("vnp%d", b),
	}
}

// Setup creates the veth pair, moves the peer end into the namespace and
// configures addresses, links and the namespace's default route. When two
// instances race for the same block, the second fails here because the
// interface names collide.
func (ep *Endpoint) Setup(ctx context.Context) (err error) {
	la := netlink.NewLinkAttrs()
	la.Name = ep.HostIf
	veth := &netlink.Veth{
		LinkAttrs: la,
		PeerName:  ep.PeerIf,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return errors.Wrapf(err, "cannot add veth pair %s", ep.HostIf)
	}
	defer func() {
		if err != nil {
			if delErr := netlink.LinkDel(veth); delErr != nil {
				log.Warnf("cannot remove veth pair %s: %v", ep.HostIf, delErr)
			}
		}
	}()

	hostAddr, err := netlink.ParseAddr(ep.Block.HostCIDR())
	if err != nil {
		return err
	}
	if err = netlink.AddrAdd(veth, hostAddr); err != nil {
		return errors.Wrapf(err, "cannot assign %s to %s", hostAddr, ep.HostIf)
	}
	if err = netlink.LinkSetUp(veth); err != nil {
		return errors.Wrapf(err, "cannot bring up %s", ep.HostIf)
	}

	peer, err := netlink.LinkByName(ep.PeerIf)
	if err != nil {
		return err
	}
	nsHandle, err := netns.GetFromName(ep.Namespace)
	if err != nil {
		return errors.Wrapf(err, "cannot open network namespace %s", ep.Namespace)
	}
	defer nsHandle.Close()
	if err = netlink.LinkSetNsFd(peer, int(nsHandle)); err != nil {
		return errors.Wrapf(err, "cannot move %s into %s", ep.PeerIf, ep.Namespace)
	}
	if err = ep.configurePeer(nsHandle); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"namespace": ep.Namespace,
		"host":      ep.HostIf,
		"subnet":    ep.Block.Net().String(),
	}).Info("connected network namespace")
	return nil
}

// configurePeer works inside the namespace through a netlink handle bound to
// it, so the calling thread never switches namespaces.
func (ep *Endpoint) configurePeer(nsHandle netns.NsHandle) error {
	h, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		return err
	}
	defer h.Close()

	peer, err := h.LinkByName(ep.PeerIf)
	if err != nil {
		return err
	}
	peerAddr, err := netlink.ParseAddr(ep.Block.PeerCIDR())
	if err != nil {
		return err
	}
	if err := h.AddrAdd(peer, peerAddr); err != nil {
		return errors.Wrapf(err, "cannot assign %s to %s", peerAddr, ep.PeerIf)
	}
	if err := h.LinkSetUp(peer); err != nil {
		return errors.Wrapf(err, "cannot bring up %s", ep.PeerIf)
	}
	// The loopback of a fresh namespace is down.
	lo, err := h.LinkByName("lo")
	if err != nil {
		return err
	}
	if err := h.LinkSetUp(lo); err != nil {
		return err
	}
	_, anywhere, _ := net.ParseCIDR("0.0.0.0/0")
	return h.RouteAdd(&netlink.Route{
		LinkIndex: peer.Attrs().Index,
		Gw:        ep.Block.Gateway(),
		Dst:       anywhere,
	})
}

// Teardown removes the host end of the veth pair, which takes the peer end
// with it. Deleting the namespace also does this, so a missing link is fine.
func (ep *Endpoint) Teardown(ctx context.Context) error {
	link, err := netlink.LinkByName(ep.HostIf)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return netlink.LinkDel(link)
}
