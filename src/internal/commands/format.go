package commands

import (
	"fmt"
	"strings"

	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/networking"
	"github.com/maksimkurb/pbrsync/src/internal/pbrmap"
)

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[0;36m"
	colorGreen = "\033[32m"
	colorRed   = "\033[0;31m"
)

func colorForBool(value bool) string {
	if value {
		return colorGreen
	}
	return colorRed
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// formatMaps renders pbr maps the way `show pbr map` lists them.
func formatMaps(maps []pbrmap.MapView) string {
	var sb strings.Builder

	for _, m := range maps {
		valid := true
		for _, r := range m.Rules {
			valid = valid && r.Installed
		}
		sb.WriteString(fmt.Sprintf("  pbr-map %s%s%s valid: %s%s%s\n",
			colorCyan, m.Name, colorReset,
			colorForBool(valid), yesNo(valid), colorReset))

		for _, r := range m.Rules {
			writeRule(&sb, r)
		}
	}

	return sb.String()
}

// formatInterfaces renders the interface bindings like `show pbr interface`.
func formatInterfaces(ifaces []pbrmap.InterfaceView) string {
	var sb strings.Builder

	for _, iface := range ifaces {
		sb.WriteString(fmt.Sprintf("  %s%s%s(%s) with pbr-policy %s\n",
			colorCyan, iface.Interface, colorReset,
			kernel.DisplayName(iface.Namespace), iface.Map))
	}

	return sb.String()
}

func writeRule(sb *strings.Builder, r pbrmap.RuleView) {
	sb.WriteString(fmt.Sprintf("    Seq %d rule %d (%s, iif %s)\n", r.Seq, r.Priority, kernel.DisplayName(r.Namespace), r.Interface))

	reason := "Valid"
	if r.Status != "" {
		reason = r.Status
	}
	sb.WriteString(fmt.Sprintf("        Installed: %s%s%s Reason: %s\n",
		colorForBool(r.Installed), yesNo(r.Installed), colorReset, reason))

	if r.SrcIP != "" {
		sb.WriteString(fmt.Sprintf("        SRC IP Match: %s\n", r.SrcIP))
	}
	if r.DstIP != "" {
		sb.WriteString(fmt.Sprintf("        DST IP Match: %s\n", r.DstIP))
	}
	sb.WriteString(fmt.Sprintf("        Table: %d\n", r.Table))
}

// linkInfo is what the interfaces command prints about a link.
type linkInfo struct {
	Index       int
	Name        string
	IsUp        bool
	IPAddresses []string
}

func formatLinks(links []linkInfo) string {
	var sb strings.Builder

	for _, link := range links {
		sb.WriteString(fmt.Sprintf("%d. %s%s%s (%sup%s=%s%v%s)\n",
			link.Index,
			colorCyan, link.Name, colorReset,
			colorCyan, colorReset,
			colorForBool(link.IsUp), link.IsUp, colorReset))

		for _, ip := range link.IPAddresses {
			family := "IPv4"
			if strings.Contains(ip, ":") {
				family = "IPv6"
			}
			sb.WriteString(fmt.Sprintf("  IP Address (%s): %s\n", family, ip))
		}
	}

	return sb.String()
}

func collectLinks(ns *networking.Namespace, includeLoopback bool) ([]linkInfo, error) {
	ifaces, err := ns.Interfaces()
	if err != nil {
		return nil, err
	}

	var links []linkInfo
	for _, iface := range ifaces {
		if iface.IsLoopback() && !includeLoopback {
			continue
		}

		info := linkInfo{
			Index: iface.Attrs().Index,
			Name:  iface.Attrs().Name,
			IsUp:  iface.IsUp(),
		}

		ips, err := ns.Addrs(iface)
		if err != nil {
			return nil, fmt.Errorf("failed to get addresses of %s: %w", info.Name, err)
		}
		for _, ip := range ips {
			info.IPAddresses = append(info.IPAddresses, ip.String())
		}
		links = append(links, info)
	}
	return links, nil
}
