package networking

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/valyala/fasttemplate"
	"github.com/vishvananda/netlink"

	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// ToNetlinkRule converts r into the form netlink.RuleListFiltered matches on.
func ToNetlinkRule(r rule.Rule) (*netlink.Rule, uint64) {
	nr := netlink.NewRule()
	nr.Family = int(r.Family())
	nr.Priority = int(r.Priority)
	nr.Table = int(r.Action.Table)
	mask := uint64(netlink.RT_FILTER_PRIORITY | netlink.RT_FILTER_TABLE)

	if r.Interface != "" {
		nr.IifName = r.Interface
		mask |= netlink.RT_FILTER_IIF
	}
	if r.Filter.HasSrc() {
		nr.Src = ipNet(r.Filter.Src)
		mask |= netlink.RT_FILTER_SRC
	}
	if r.Filter.HasDst() {
		nr.Dst = ipNet(r.Filter.Dst)
		mask |= netlink.RT_FILTER_DST
	}
	return nr, mask
}

// IsInstalled reports whether the kernel of this namespace holds r.
func (n *Namespace) IsInstalled(r rule.Rule) (bool, error) {
	nr, mask := ToNetlinkRule(r)

	filtered, err := n.handle.RuleListFiltered(nr.Family, nr, mask)
	if err != nil {
		log.Warnf("Checking if IP rule exists [%v] is failed: %v", r, err)
		return false, err
	}

	if len(filtered) > 0 {
		log.Debugf("Checking if IP rule exists [%v]: YES", r)
		return true, nil
	}

	log.Debugf("Checking if IP rule exists [%v]: NO", r)
	return false, nil
}

func ipNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

const ruleCommandTemplate = "ip{{family}}{{netns}} rule {{op}} pref {{priority}}{{iif}}{{from}}{{to}} lookup {{table}}"

// RuleCommand renders the iproute2 command equivalent to installing (op
// "add") or removing (op "del") r in namespace ns.
func RuleCommand(ns, op string, r rule.Rule) string {
	family := ""
	if r.Family() == netlink.FAMILY_V6 {
		family = " -6"
	}

	optional := func(keyword string, ok bool, value string) string {
		if !ok {
			return ""
		}
		return " " + keyword + " " + value
	}

	t := fasttemplate.New(ruleCommandTemplate, "{{", "}}")
	return t.ExecuteString(map[string]interface{}{
		"family":   family,
		"netns":    optional("-n", ns != "", ns),
		"op":       op,
		"priority": strconv.FormatUint(uint64(r.Priority), 10),
		"iif":      optional("iif", r.Interface != "", r.Interface),
		"from":     optional("from", r.Filter.HasSrc(), r.Filter.Src.String()),
		"to":       optional("to", r.Filter.HasDst(), r.Filter.Dst.String()),
		"table":    strconv.FormatUint(uint64(r.Action.Table), 10),
	})
}
