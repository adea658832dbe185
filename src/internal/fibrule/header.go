package fibrule

import (
	"fmt"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
)

// HeaderLen is sizeof(struct fib_rule_hdr).
const HeaderLen = 12

// Header mirrors struct fib_rule_hdr.
type Header struct {
	Family uint8
	DstLen uint8
	SrcLen uint8
	Tos    uint8
	Table  uint8
	Res1   uint8
	Res2   uint8
	Action uint8
	Flags  uint32
}

// Serialize returns the header in host byte order, as the kernel expects it.
func (h Header) Serialize() []byte {
	b := make([]byte, HeaderLen)
	b[0] = h.Family
	b[1] = h.DstLen
	b[2] = h.SrcLen
	b[3] = h.Tos
	b[4] = h.Table
	b[5] = h.Res1
	b[6] = h.Res2
	b[7] = h.Action
	nl.NativeEndian().PutUint32(b[8:], h.Flags)
	return b
}

// ParseHeader reads a fib_rule_hdr from the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, errors.NewEncodingError(
			fmt.Sprintf("truncated fib rule header: %d of %d bytes", len(b), HeaderLen), nil)
	}
	return Header{
		Family: b[0],
		DstLen: b[1],
		SrcLen: b[2],
		Tos:    b[3],
		Table:  b[4],
		Res1:   b[5],
		Res2:   b[6],
		Action: b[7],
		Flags:  nl.NativeEndian().Uint32(b[8:HeaderLen]),
	}, nil
}

// Op is the operation a request message performs.
type Op uint8

const (
	OpAdd Op = iota
	OpDelete
)

// MsgType returns the netlink message type for the operation.
func (o Op) MsgType() uint16 {
	if o == OpDelete {
		return unix.RTM_DELRULE
	}
	return unix.RTM_NEWRULE
}

func (o Op) String() string {
	return MsgTypeName(o.MsgType())
}

// MsgTypeName names rule message types for logs.
func MsgTypeName(t uint16) string {
	switch t {
	case unix.RTM_NEWRULE:
		return "RTM_NEWRULE"
	case unix.RTM_DELRULE:
		return "RTM_DELRULE"
	case unix.RTM_GETRULE:
		return "RTM_GETRULE"
	default:
		return fmt.Sprintf("msg%d", t)
	}
}
