// Package networking gives access to a network namespace: interface lookup,
// rtnetlink sockets for rule requests and rule notifications, and checks
// against the kernel's rule table.
//
// # Example Usage
//
//	ns, err := networking.OpenNamespace("blue")
//	if err != nil {
//	    return err
//	}
//	defer ns.Close()
//
//	sock, err := ns.CommandSocket()
//	...
//	installed, err := ns.IsInstalled(r)
//
// RuleCommand renders the iproute2 equivalent of a rule, for logs and the
// self-check output:
//
//	networking.RuleCommand("blue", "add", r)
//	// ip -n blue rule add pref 310 iif eth0 from 10.0.0.0/24 lookup 1000
package networking
