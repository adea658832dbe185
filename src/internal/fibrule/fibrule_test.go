package fibrule

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	pbrerrors "github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

func v4Rule(table uint32) rule.Rule {
	return rule.Rule{
		Priority:  310,
		Interface: "eth0",
		Filter:    rule.Filter{Src: netip.MustParsePrefix("10.0.0.0/24")},
		Action:    rule.Action{Table: table},
	}
}

func mustEncode(t *testing.T, op Op, r rule.Rule) (*Message, *Decoded) {
	t.Helper()
	msg, err := Encode(op, r, DefaultMaxMessageSize)
	require.NoError(t, err)
	dec, err := Decode(msg.Type, msg.Payload())
	require.NoError(t, err)
	return msg, dec
}

func TestEncodeSmallTableUsesHeader(t *testing.T) {
	for _, table := range []uint32{1, 5, 100, 254, 255} {
		_, dec := mustEncode(t, OpAdd, v4Rule(table))

		assert.Equal(t, uint8(table), dec.Header.Table, "table %d", table)
		assert.False(t, dec.Attrs.HasTable, "table %d must not carry FRA_TABLE", table)
		assert.Equal(t, table, dec.Table())
	}
}

func TestEncodeLargeTableUsesAttribute(t *testing.T) {
	for _, table := range []uint32{256, 1000, 0xFFFFFFFF} {
		_, dec := mustEncode(t, OpAdd, v4Rule(table))

		assert.Equal(t, uint8(unix.RT_TABLE_UNSPEC), dec.Header.Table, "table %d", table)
		require.True(t, dec.Attrs.HasTable, "table %d needs FRA_TABLE", table)
		assert.Equal(t, table, dec.Attrs.Table)
		assert.Equal(t, table, dec.Table())
	}
}

func TestEncodePriorityAlwaysPresent(t *testing.T) {
	rules := []rule.Rule{
		v4Rule(100),
		{Priority: 0, Interface: "eth1", Action: rule.Action{Table: 7}},
		{Priority: 42, Filter: rule.Filter{Dst: netip.MustParsePrefix("2001:db8::/32")}, Action: rule.Action{Table: 300}},
	}

	for _, r := range rules {
		for _, op := range []Op{OpAdd, OpDelete} {
			_, dec := mustEncode(t, op, r)
			require.True(t, dec.Attrs.HasPriority, "%s [%s]", op, r)
			assert.Equal(t, r.Priority, dec.Attrs.Priority)
		}
	}
}

func TestEncodeAddAndDeleteDifferOnlyInType(t *testing.T) {
	r := rule.Rule{
		Priority:  1000,
		Interface: "wg0",
		Filter: rule.Filter{
			Src: netip.MustParsePrefix("2001:db8::/48"),
			Dst: netip.MustParsePrefix("2001:db8:ffff::/64"),
		},
		Action: rule.Action{Table: 4242},
	}

	add, err := Encode(OpAdd, r, DefaultMaxMessageSize)
	require.NoError(t, err)
	del, err := Encode(OpDelete, r, DefaultMaxMessageSize)
	require.NoError(t, err)

	assert.Equal(t, uint16(unix.RTM_NEWRULE), add.Type)
	assert.Equal(t, uint16(unix.RTM_DELRULE), del.Type)
	assert.Equal(t, add.Payload(), del.Payload())
}

func TestEncodeHeaderFields(t *testing.T) {
	r := rule.Rule{
		Priority:  310,
		Interface: "eth0",
		Filter: rule.Filter{
			Src: netip.MustParsePrefix("10.0.0.0/24"),
			Dst: netip.MustParsePrefix("192.168.0.0/16"),
		},
		Action: rule.Action{Table: 100},
	}

	msg, err := Encode(OpAdd, r, DefaultMaxMessageSize)
	require.NoError(t, err)

	payload := msg.Payload()
	assert.Equal(t, uint8(unix.AF_INET), payload[0], "family")
	assert.Equal(t, uint8(16), payload[1], "dst_len")
	assert.Equal(t, uint8(24), payload[2], "src_len")
	assert.Equal(t, uint8(100), payload[4], "table")
	assert.Equal(t, uint8(unix.FR_ACT_TO_TBL), payload[7], "action")
	assert.Equal(t, msg.Len(), unix.NLMSG_HDRLEN+len(payload))

	dec, err := Decode(msg.Type, payload)
	require.NoError(t, err)
	assert.Equal(t, "eth0", dec.Attrs.IfName)
	assert.Equal(t, []byte{10, 0, 0, 0}, dec.Attrs.Src)
	assert.Equal(t, []byte{192, 168, 0, 0}, dec.Attrs.Dst)

	back, err := dec.Rule()
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestEncodeIPv6AddressLength(t *testing.T) {
	r := rule.Rule{
		Priority: 5,
		Filter:   rule.Filter{Src: netip.MustParsePrefix("2001:db8::/32")},
		Action:   rule.Action{Table: 10},
	}

	_, dec := mustEncode(t, OpAdd, r)
	assert.Equal(t, uint8(unix.AF_INET6), dec.Header.Family)
	assert.Len(t, dec.Attrs.Src, 16)
	assert.Nil(t, dec.Attrs.Dst)
	assert.False(t, dec.Attrs.HasIfName)
}

func TestEncodeInterfaceOnlyRule(t *testing.T) {
	r := rule.Rule{Priority: 9, Interface: "eth2", Action: rule.Action{Table: 20}}

	_, dec := mustEncode(t, OpAdd, r)
	assert.Equal(t, uint8(unix.AF_UNSPEC), dec.Header.Family)
	assert.Zero(t, dec.Header.SrcLen)
	assert.Zero(t, dec.Header.DstLen)
	assert.Nil(t, dec.Attrs.Src)
	assert.Nil(t, dec.Attrs.Dst)
	assert.Equal(t, "eth2", dec.Attrs.IfName)
}

func TestEncodeInterfaceUsesIifAttribute(t *testing.T) {
	msg, _ := mustEncode(t, OpAdd, v4Rule(100))

	attrs, err := nl.ParseRouteAttr(msg.Payload()[HeaderLen:])
	require.NoError(t, err)

	var iif []byte
	for _, a := range attrs {
		if a.Attr.Type == 3 {
			iif = a.Value
		}
	}
	assert.Equal(t, []byte("eth0\x00"), iif)
}

func TestEncodeOverflow(t *testing.T) {
	r := v4Rule(1000)

	full, err := Encode(OpAdd, r, DefaultMaxMessageSize)
	require.NoError(t, err)

	// Exactly enough room succeeds.
	exact, err := Encode(OpAdd, r, full.Len())
	require.NoError(t, err)
	assert.Equal(t, full.Payload(), exact.Payload())

	// One byte short fails instead of dropping FRA_TABLE.
	_, err = Encode(OpAdd, r, full.Len()-1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pbrerrors.ErrBufferOverflow))

	_, err = Encode(OpAdd, r, 8)
	assert.True(t, errors.Is(err, pbrerrors.ErrBufferOverflow))
}

func TestEncodeMinimalBound(t *testing.T) {
	msg, err := Encode(OpDelete, rule.Rule{Priority: 1, Action: rule.Action{Table: 1}}, MinMaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, MinMaxMessageSize, msg.Len())
}

func TestEncodeRejectsMixedFamily(t *testing.T) {
	r := v4Rule(100)
	r.Filter.Dst = netip.MustParsePrefix("2001:db8::/32")

	_, err := Encode(OpAdd, r, DefaultMaxMessageSize)
	assert.True(t, errors.Is(err, pbrerrors.ErrMixedFamily))
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := Decode(unix.RTM_DELRULE, []byte{unix.AF_INET, 0, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pbrerrors.Code(pbrerrors.ErrCodeEncoding)))
}

func TestDecodeShortPriority(t *testing.T) {
	payload := Header{Family: unix.AF_INET, Action: unix.FR_ACT_TO_TBL}.Serialize()
	payload = append(payload, nl.NewRtAttr(unix.FRA_PRIORITY, []byte{1, 2}).Serialize()...)

	_, err := Decode(unix.RTM_DELRULE, payload)
	assert.Error(t, err)
}

func TestDecodedRuleRejectsBadPrefix(t *testing.T) {
	d := &Decoded{
		Header: Header{Family: unix.AF_INET, SrcLen: 40},
		Attrs:  Attributes{Src: []byte{10, 0, 0, 0}},
	}
	_, err := d.Rule()
	assert.Error(t, err)

	d = &Decoded{
		Header: Header{Family: unix.AF_INET6, DstLen: 64},
		Attrs:  Attributes{Dst: []byte{10, 0, 0, 0}},
	}
	_, err = d.Rule()
	assert.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Family: unix.AF_INET6, DstLen: 64, SrcLen: 48, Tos: 4, Table: 200, Action: unix.FR_ACT_TO_TBL, Flags: 0x10}

	got, err := ParseHeader(h.Serialize())
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestOpNames(t *testing.T) {
	assert.Equal(t, "RTM_NEWRULE", OpAdd.String())
	assert.Equal(t, "RTM_DELRULE", OpDelete.String())
	assert.Equal(t, "msg16", MsgTypeName(unix.RTM_NEWLINK))
}
