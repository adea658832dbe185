package networking

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/log"
)

// NotificationTimeout bounds a single blocking read on a notification socket
// so readers can notice cancellation.
const NotificationTimeout = 1 // seconds

// Namespace is an open network namespace. The empty name is the namespace
// the process runs in.
type Namespace struct {
	Name   string
	ns     netns.NsHandle
	handle *netlink.Handle
}

// OpenNamespace opens the named namespace from /var/run/netns.
func OpenNamespace(name string) (*Namespace, error) {
	ns := netns.None()
	if name != "" {
		var err error
		ns, err = netns.GetFromName(name)
		if err != nil {
			return nil, errors.NewNamespaceError(fmt.Sprintf("failed to open netns %q", name), err)
		}
	}

	handle, err := netlink.NewHandleAt(ns, unix.NETLINK_ROUTE)
	if err != nil {
		if ns.IsOpen() {
			ns.Close()
		}
		return nil, errors.NewNamespaceError(fmt.Sprintf("failed to create netlink handle in netns %q", name), err)
	}

	log.Debugf("Opened netns %q", name)
	return &Namespace{Name: name, ns: ns, handle: handle}, nil
}

// Close releases the netlink handle and the namespace file descriptor.
func (n *Namespace) Close() {
	n.handle.Close()
	if n.ns.IsOpen() {
		n.ns.Close()
	}
}

// LinkByName looks up an interface inside the namespace.
func (n *Namespace) LinkByName(name string) (netlink.Link, error) {
	link, err := n.handle.LinkByName(name)
	if err != nil {
		return nil, errors.NewInterfaceError(fmt.Sprintf("interface %q not found in netns %q", name, n.Name), err)
	}
	return link, nil
}

// CommandSocket opens an rtnetlink socket for rule requests.
func (n *Namespace) CommandSocket() (*nl.NetlinkSocket, error) {
	sock, err := nl.GetNetlinkSocketAt(n.ns, netns.None(), unix.NETLINK_ROUTE)
	if err != nil {
		return nil, errors.NewNamespaceError(fmt.Sprintf("failed to open rtnetlink socket in netns %q", n.Name), err)
	}
	return sock, nil
}

// Subscribe opens a socket joined to the IPv4 and IPv6 rule notification groups.
func (n *Namespace) Subscribe() (*nl.NetlinkSocket, error) {
	sock, err := nl.SubscribeAt(n.ns, netns.None(), unix.NETLINK_ROUTE,
		unix.RTNLGRP_IPV4_RULE, unix.RTNLGRP_IPV6_RULE)
	if err != nil {
		return nil, errors.NewNamespaceError(fmt.Sprintf("failed to subscribe to rule events in netns %q", n.Name), err)
	}

	if err := sock.SetReceiveTimeout(&unix.Timeval{Sec: NotificationTimeout}); err != nil {
		sock.Close()
		return nil, errors.NewNamespaceError("failed to set receive timeout", err)
	}
	return sock, nil
}
