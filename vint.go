package seqfile

// AppendVInt appends the variable-length encoding of v to dst and returns
// the result. The high bit of each byte signals continuation, the low seven
// bits are emitted least-significant group first.
func AppendVInt(dst []byte, v int64) []byte {
	u := uint64(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// DecodeVInt decodes a variable-length integer from the start of buf and
// returns the value together with the number of bytes consumed. It returns
// ErrVIntTruncated when buf ends before a terminating byte and
// ErrVIntOverflow when the value does not fit into an int64; it never
// truncates silently.
func DecodeVInt(buf []byte) (int64, int, error) {
	var u uint64
	for n, b := range buf {
		if n == maxVIntLen-1 && b > 1 || n >= maxVIntLen {
			return 0, 0, ErrVIntOverflow
		}
		u |= uint64(b&0x7f) << uint(7*n)
		if b < 0x80 {
			return int64(u), n + 1, nil
		}
	}
	return 0, 0, ErrVIntTruncated
}
