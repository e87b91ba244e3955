package journal

// --------------------------------------------------------------------------
// Wire Layout
// --------------------------------------------------------------------------

// The tag byte carries the op in its lower 6 bits and two presence flags
const (
	opMask     byte = 0x3f
	hasDbIndex byte = 1 << 6
	hasPayload byte = 1 << 7
)

// MaxPackedLen is the longest packed encoding of a 64 bit value
const MaxPackedLen = 10

// --------------------------------------------------------------------------
// Packed Unsigned Integer
// --------------------------------------------------------------------------

// AppendUint appends v in packed encoding: 7 bits per byte, least significant
// group first, high bit set on every byte but the last.
func AppendUint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// UintLen returns the number of bytes AppendUint produces for v
func UintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ParseUint decodes a packed integer from the start of b.
// It returns the value and the number of bytes read. If b ends before the last byte of
// the integer, n is 0 and err is nil. A value that does not fit into 64 bits returns
// ErrMalformedUint.
func ParseUint(b []byte) (v uint64, n int, err error) {
	var shift uint
	for i, c := range b {
		if i == MaxPackedLen-1 && c > 1 {
			return 0, 0, ErrMalformedUint
		}
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, nil
}

// --------------------------------------------------------------------------
// Strings and Command Payloads
// --------------------------------------------------------------------------

// AppendString appends s as packed length followed by the raw bytes
func AppendString(dst []byte, s []byte) []byte {
	dst = AppendUint(dst, uint64(len(s)))
	return append(dst, s...)
}

// StringLen returns the encoded size of a string of length n
func StringLen(n int) int {
	return UintLen(uint64(n)) + n
}

// AppendPayload appends the argument count, the command name and every argument.
// The count covers the arguments only, the command name is always present.
func AppendPayload(dst []byte, p *Payload) []byte {
	dst = AppendUint(dst, uint64(len(p.Args)))
	dst = AppendUint(dst, uint64(len(p.Command)))
	dst = append(dst, p.Command...)
	for _, a := range p.Args {
		dst = AppendString(dst, a)
	}
	return dst
}

// PayloadLen returns the exact encoded size of p
func PayloadLen(p *Payload) int {
	size := UintLen(uint64(len(p.Args))) + StringLen(len(p.Command))
	for _, a := range p.Args {
		size += StringLen(len(a))
	}
	return size
}

// EntryLen returns the maximum encoded size of e: the db index is counted as if
// it had to be written.
func EntryLen(e Entry) int {
	size := 1 + UintLen(uint64(e.DbIndex))
	if e.Payload != nil {
		size += PayloadLen(e.Payload)
	}
	return size
}
