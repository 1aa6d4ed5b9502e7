package network

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"vnetns/errs"
)

// Block identifies the /24 subnet 10.200.<Block>.0/24 of the parent range.
// Valid blocks are 1 to MaxBlock.
type Block uint8

const (
	// MaxBlock is the highest allocatable block, limiting the number of
	// concurrent namespaces.
	MaxBlock Block = 254
	// ParentRange is the private range all blocks are drawn from.
	ParentRange = "10.200.0.0/16"
)

var parentNet = func() *net.IPNet {
	_, n, _ := net.ParseCIDR(ParentRange)
	return n
}()

// Net returns the block's network, such as 10.200.3.0/24.
func (b Block) Net() *net.IPNet {
	return &net.IPNet{IP: net.IPv4(10, 200, byte(b), 0).To4(), Mask: net.CIDRMask(24, 32)}
}

// HostCIDR returns the gateway address on the root namespace side of the
// block, such as 10.200.3.1/24.
func (b Block) HostCIDR() string {
	return fmt.Sprintf("10.200.%d.1/24", b)
}

// PeerCIDR returns the address inside the namespace, such as 10.200.3.2/24.
func (b Block) PeerCIDR() string {
	return fmt.Sprintf("10.200.%d.2/24", b)
}

// Gateway returns the bare host side address of the block.
func (b Block) Gateway() net.IP {
	return net.IPv4(10, 200, byte(b), 1).To4()
}

func (b Block) String() string {
	return b.HostCIDR()
}

// Occupied parses the given address/prefix strings and returns the blocks
// of the parent range they fall into. Addresses outside the parent range
// don't occupy anything. A malformed address fails the whole operation, as
// the interface list is expected to be well formed.
func Occupied(cidrs []string) (map[Block]bool, error) {
	occupied := map[Block]bool{}
	for _, cidr := range cidrs {
		ip, _, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrParseFailed, err, "malformed interface address %q", cidr)
		}
		ip4 := ip.To4()
		if ip4 == nil || !parentNet.Contains(ip4) {
			continue
		}
		if b := Block(ip4[2]); b >= 1 && b <= MaxBlock {
			occupied[b] = true
		}
	}
	return occupied, nil
}

// FirstFree returns the lowest block not in occupied.
func FirstFree(occupied map[Block]bool) (Block, error) {
	for b := Block(1); b <= MaxBlock; b++ {
		if !occupied[b] {
			return b, nil
		}
	}
	return 0, errs.Wrapf(errs.ErrNoFreeSubnet, nil,
		"could not find free subnet of form 10.200.xxx.1/24")
}

// AllocateSubnet picks the lowest block not used by any veth interface
// address of the host. The block is not reserved: the caller has to create
// its namespace and veth pair right away, and any two callers racing for
// the same block collide when adding the addresses.
func AllocateSubnet(ctx context.Context, src AddressSource) (Block, error) {
	cidrs, err := src.VethAddrs(ctx)
	if err != nil {
		return 0, err
	}
	log.WithField("addresses", cidrs).Debug("assigned veth addresses")
	occupied, err := Occupied(cidrs)
	if err != nil {
		return 0, err
	}
	b, err := FirstFree(occupied)
	if err != nil {
		return 0, err
	}
	log.WithField("subnet", b.Net().String()).Debug("allocated subnet")
	return b, nil
}
