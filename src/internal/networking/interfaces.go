package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
)

type Interface struct {
	netlink.Link
}

// Interfaces lists the links of the namespace.
func (n *Namespace) Interfaces() ([]Interface, error) {
	links, err := n.handle.LinkList()
	if err != nil {
		return nil, errors.NewInterfaceError(fmt.Sprintf("failed to list interfaces in netns %q", n.Name), err)
	}
	var interfaces []Interface
	for _, link := range links {
		interfaces = append(interfaces, Interface{link})
	}
	return interfaces, nil
}

// Addrs returns the addresses assigned to iface.
func (n *Namespace) Addrs(iface Interface) ([]net.IP, error) {
	addrs, err := n.handle.AddrList(iface.Link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, errors.NewInterfaceError(fmt.Sprintf("failed to list addresses of %s", iface.Attrs().Name), err)
	}
	var ips []net.IP
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

func (iface *Interface) IsUp() bool {
	return iface.Attrs().Flags&net.FlagUp != 0
}

func (iface *Interface) IsLoopback() bool {
	return iface.Attrs().Flags&net.FlagLoopback != 0
}
