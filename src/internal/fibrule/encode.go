package fibrule

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// DefaultMaxMessageSize bounds a whole request, netlink header included.
const DefaultMaxMessageSize = 8192

// MinMaxMessageSize is the smallest bound that fits a header and a priority.
const MinMaxMessageSize = unix.NLMSG_HDRLEN + HeaderLen + unix.SizeofRtAttr + 4

// Message is an encoded rule request without its netlink header.
type Message struct {
	Type   uint16
	Header Header
	Attrs  []byte
}

// Payload returns the bytes that follow the netlink header.
func (m *Message) Payload() []byte {
	b := make([]byte, 0, HeaderLen+len(m.Attrs))
	b = append(b, m.Header.Serialize()...)
	return append(b, m.Attrs...)
}

// Len returns the full on-wire length including the netlink header.
func (m *Message) Len() int {
	return unix.NLMSG_HDRLEN + HeaderLen + len(m.Attrs)
}

// encoder appends route attributes and refuses to grow past limit.
type encoder struct {
	buf   []byte
	limit int
}

func (e *encoder) put(attrType int, data []byte) error {
	attr := nl.NewRtAttr(attrType, data).Serialize()
	if len(e.buf)+len(attr) > e.limit {
		return errors.NewEncodingError(
			fmt.Sprintf("attribute %d needs %d bytes, %d of %d left", attrType, len(attr), e.limit-len(e.buf), e.limit),
			errors.ErrBufferOverflow)
	}
	e.buf = append(e.buf, attr...)
	return nil
}

// Encode builds the request for op on r. The result, netlink header
// included, never exceeds maxSize bytes.
func Encode(op Op, r rule.Rule, maxSize int) (*Message, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	limit := maxSize - unix.NLMSG_HDRLEN - HeaderLen
	if limit < 0 {
		return nil, errors.NewEncodingError(
			fmt.Sprintf("message size %d cannot hold a rule header", maxSize), errors.ErrBufferOverflow)
	}

	msg := &Message{
		Type: op.MsgType(),
		Header: Header{
			Family: r.Family(),
			Action: unix.FR_ACT_TO_TBL,
		},
	}
	enc := &encoder{limit: limit}

	if err := enc.put(unix.FRA_PRIORITY, nl.Uint32Attr(r.Priority)); err != nil {
		return nil, err
	}

	if r.Interface != "" {
		if err := enc.put(unix.FRA_IIFNAME, nl.ZeroTerminated(r.Interface)); err != nil {
			return nil, err
		}
	}

	if r.Filter.HasSrc() {
		msg.Header.SrcLen = uint8(r.Filter.Src.Bits())
		if err := enc.put(unix.FRA_SRC, addrBytes(r.Filter.Src.Addr())); err != nil {
			return nil, err
		}
	}

	if r.Filter.HasDst() {
		msg.Header.DstLen = uint8(r.Filter.Dst.Bits())
		if err := enc.put(unix.FRA_DST, addrBytes(r.Filter.Dst.Addr())); err != nil {
			return nil, err
		}
	}

	// The header byte holds tables below 256; larger ids need FRA_TABLE and
	// an RT_TABLE_UNSPEC header so older readers know to look for it.
	if r.Action.Table < 256 {
		msg.Header.Table = uint8(r.Action.Table)
	} else {
		msg.Header.Table = unix.RT_TABLE_UNSPEC
		if err := enc.put(unix.FRA_TABLE, nl.Uint32Attr(r.Action.Table)); err != nil {
			return nil, err
		}
	}

	msg.Attrs = enc.buf
	return msg, nil
}

// addrBytes returns 4 bytes for IPv4 and 16 for IPv6.
func addrBytes(a netip.Addr) []byte {
	if a.Is4() {
		b := a.As4()
		return b[:]
	}
	b := a.As16()
	return b[:]
}
