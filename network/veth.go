package network

import (
	"context"
	"regexp"

	"github.com/vishvananda/netlink"

	"vnetns/errs"
)

// AddressSource lists the IPv4 addresses bound to the host's veth
// interfaces, in address/prefix notation.
type AddressSource interface {
	VethAddrs(ctx context.Context) ([]string, error)
}

// NetlinkSource queries the kernel directly over netlink.
type NetlinkSource struct{}

// VethAddrs implements AddressSource.
func (NetlinkSource) VethAddrs(ctx context.Context) ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot list network interfaces")
	}
	var cidrs []string
	for _, link := range links {
		if link.Type() != "veth" {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrQueryFailed, err,
				"cannot list addresses of interface %s", link.Attrs().Name)
		}
		for _, addr := range addrs {
			if addr.IPNet == nil {
				continue
			}
			cidrs = append(cidrs, addr.IPNet.String())
		}
	}
	return cidrs, nil
}

// IPRouteSource asks the iproute2 "ip" tool, for hosts where netlink
// access is restricted.
type IPRouteSource struct{}

var inetRegexp = regexp.MustCompile(`\binet\s+(\S+)`)

// VethAddrs implements AddressSource.
func (IPRouteSource) VethAddrs(ctx context.Context) ([]string, error) {
	out, err := runCommand(ctx, "ip", "-o", "-4", "addr", "show", "type", "veth")
	if err != nil {
		return nil, errs.Wrapf(errs.ErrQueryFailed, err, "cannot list veth addresses")
	}
	return ParseIPAddrOutput(string(out)), nil
}

// ParseIPAddrOutput extracts the "inet" address/prefix fields from the
// output of "ip addr show". The fields are not validated here.
func ParseIPAddrOutput(output string) []string {
	var cidrs []string
	for _, m := range inetRegexp.FindAllStringSubmatch(output, -1) {
		cidrs = append(cidrs, m[1])
	}
	return cidrs
}
