// Package rule holds the value types exchanged between the rule owner and the
// kernel synchronisation engine: a policy routing rule and the outcome of
// installing or removing it.
package rule

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
)

// Filter holds the match criteria of a rule. A zero (invalid) prefix means
// the dimension is not matched.
type Filter struct {
	Src netip.Prefix
	Dst netip.Prefix
}

// HasSrc reports whether the rule matches on source prefix.
func (f Filter) HasSrc() bool {
	return f.Src.IsValid()
}

// HasDst reports whether the rule matches on destination prefix.
func (f Filter) HasDst() bool {
	return f.Dst.IsValid()
}

// Action is what the kernel does with matching packets: look up Table.
type Action struct {
	Table uint32
}

// Rule is one kernel routing rule. It is comparable and may be used as a map key.
type Rule struct {
	// Priority is the kernel evaluation order, lower first.
	Priority uint32
	// Interface is the ingress interface name. The engine only looks it up,
	// it never owns the interface. Empty means no interface binding.
	Interface string
	Filter    Filter
	Action    Action
}

// Validate rejects rules the kernel could not represent in one message.
func (r Rule) Validate() error {
	if r.Filter.HasSrc() && r.Filter.HasDst() && prefixFamily(r.Filter.Src) != prefixFamily(r.Filter.Dst) {
		return errors.NewValidationError(
			fmt.Sprintf("rule [%s]", r), errors.ErrMixedFamily)
	}
	return nil
}

// Family returns the address family carried in the rule header: the source
// prefix family when set, otherwise the destination prefix family, otherwise
// AF_UNSPEC for interface-only rules.
func (r Rule) Family() uint8 {
	switch {
	case r.Filter.HasSrc():
		return prefixFamily(r.Filter.Src)
	case r.Filter.HasDst():
		return prefixFamily(r.Filter.Dst)
	default:
		return unix.AF_UNSPEC
	}
}

// String renders the rule roughly the way `ip rule` prints it.
func (r Rule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pref %d", r.Priority)
	if r.Interface != "" {
		fmt.Fprintf(&sb, " iif %s", r.Interface)
	}
	sb.WriteString(" from ")
	sb.WriteString(prefixString(r.Filter.Src))
	sb.WriteString(" to ")
	sb.WriteString(prefixString(r.Filter.Dst))
	fmt.Fprintf(&sb, " lookup %d", r.Action.Table)
	return sb.String()
}

func prefixFamily(p netip.Prefix) uint8 {
	if p.Addr().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func prefixString(p netip.Prefix) string {
	if !p.IsValid() {
		return "all"
	}
	return p.String()
}

// FamilyName names an address family the way debug traces print it.
func FamilyName(family uint8) string {
	switch family {
	case unix.AF_INET:
		return "inet"
	case unix.AF_INET6:
		return "inet6"
	case unix.AF_UNSPEC:
		return "unspec"
	default:
		return fmt.Sprintf("af%d", family)
	}
}
