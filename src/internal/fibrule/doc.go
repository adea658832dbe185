// Package fibrule encodes and decodes rtnetlink FIB rule messages
// (RTM_NEWRULE / RTM_DELRULE).
//
// A message payload is a struct fib_rule_hdr followed by route attributes:
//
//	family | dst_len | src_len | tos | table | res1 | res2 | action | flags(u32)
//	FRA_PRIORITY u32, FRA_IIFNAME string+NUL, FRA_SRC/FRA_DST 4 or 16 bytes,
//	FRA_TABLE u32
//
// The header table byte only holds ids below 256. Larger ids set the header to
// RT_TABLE_UNSPEC and travel in FRA_TABLE; decoders fall back to the header
// byte when FRA_TABLE is absent.
//
// Encoding is bounded: Encode never produces a message larger than the size it
// is given and reports ErrBufferOverflow instead of truncating.
package fibrule
