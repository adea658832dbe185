package fibrule

import (
	"bytes"
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// Attributes is the set of rule attributes found in a message. Every field
// is independently optional.
type Attributes struct {
	Priority    uint32
	HasPriority bool
	IfName      string
	HasIfName   bool
	Src         []byte
	Dst         []byte
	Table       uint32
	HasTable    bool
}

// Decoded is a parsed rule message.
type Decoded struct {
	Type   uint16
	Header Header
	Attrs  Attributes
}

// Decode parses the payload of a rule message, i.e. everything after the
// netlink header. Unknown attributes are skipped.
func Decode(msgType uint16, payload []byte) (*Decoded, error) {
	h, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}
	attrs, err := ParseAttributes(payload[HeaderLen:])
	if err != nil {
		return nil, err
	}
	return &Decoded{Type: msgType, Header: h, Attrs: attrs}, nil
}

// ParseAttributes parses the route attributes that follow a fib_rule_hdr.
func ParseAttributes(b []byte) (Attributes, error) {
	var attrs Attributes

	list, err := nl.ParseRouteAttr(b)
	if err != nil {
		return attrs, errors.NewEncodingError("malformed rule attributes", err)
	}

	for _, a := range list {
		switch a.Attr.Type {
		case unix.FRA_PRIORITY:
			v, err := uint32Value(a.Attr.Type, a.Value)
			if err != nil {
				return attrs, err
			}
			attrs.Priority, attrs.HasPriority = v, true
		case unix.FRA_IIFNAME:
			name := a.Value
			if i := bytes.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			attrs.IfName, attrs.HasIfName = string(name), true
		case unix.FRA_SRC:
			attrs.Src = append([]byte(nil), a.Value...)
		case unix.FRA_DST:
			attrs.Dst = append([]byte(nil), a.Value...)
		case unix.FRA_TABLE:
			v, err := uint32Value(a.Attr.Type, a.Value)
			if err != nil {
				return attrs, err
			}
			attrs.Table, attrs.HasTable = v, true
		}
	}

	return attrs, nil
}

// Table returns the effective table id: FRA_TABLE when present, otherwise
// the header byte.
func (d *Decoded) Table() uint32 {
	if d.Attrs.HasTable {
		return d.Attrs.Table
	}
	return uint32(d.Header.Table)
}

// Rule converts the message into a rule value. Address lengths are taken
// from the header family.
func (d *Decoded) Rule() (rule.Rule, error) {
	r := rule.Rule{
		Priority:  d.Attrs.Priority,
		Interface: d.Attrs.IfName,
		Action:    rule.Action{Table: d.Table()},
	}

	if d.Attrs.Src != nil {
		p, err := prefixFrom(d.Header.Family, d.Attrs.Src, d.Header.SrcLen)
		if err != nil {
			return rule.Rule{}, errors.NewEncodingError("bad FRA_SRC", err)
		}
		r.Filter.Src = p
	}

	if d.Attrs.Dst != nil {
		p, err := prefixFrom(d.Header.Family, d.Attrs.Dst, d.Header.DstLen)
		if err != nil {
			return rule.Rule{}, errors.NewEncodingError("bad FRA_DST", err)
		}
		r.Filter.Dst = p
	}

	return r, nil
}

func prefixFrom(family uint8, b []byte, bits uint8) (netip.Prefix, error) {
	var addr netip.Addr
	switch family {
	case unix.AF_INET:
		if len(b) < 4 {
			return netip.Prefix{}, fmt.Errorf("need 4 address bytes, got %d", len(b))
		}
		addr = netip.AddrFrom4([4]byte(b[:4]))
	case unix.AF_INET6:
		if len(b) < 16 {
			return netip.Prefix{}, fmt.Errorf("need 16 address bytes, got %d", len(b))
		}
		addr = netip.AddrFrom16([16]byte(b[:16]))
	default:
		return netip.Prefix{}, fmt.Errorf("unsupported family %d", family)
	}

	p := netip.PrefixFrom(addr, int(bits))
	if !p.IsValid() {
		return netip.Prefix{}, fmt.Errorf("prefix length %d out of range", bits)
	}
	return p, nil
}

func uint32Value(attrType uint16, v []byte) (uint32, error) {
	if len(v) < 4 {
		return 0, errors.NewEncodingError(
			fmt.Sprintf("attribute %d: need 4 bytes, got %d", attrType, len(v)), nil)
	}
	return nl.NativeEndian().Uint32(v[:4]), nil
}
