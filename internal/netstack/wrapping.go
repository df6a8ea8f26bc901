package netstack

// WrappingInt32 is a 32-bit integer viewed modulo 2^32, used for TCP
// sequence numbers. It is a pure value type; arithmetic is never done on
// signed integers.
type WrappingInt32 uint32

// wrap converts an absolute 64-bit sequence number into the wrapping space
// relative to isn: wrap(n, isn) = (isn + n) mod 2^32.
func wrap(n uint64, isn WrappingInt32) WrappingInt32 {
	return WrappingInt32(uint64(isn) + n)
}

// unwrap returns the 64-bit absolute sequence number n such that
// wrap(n, isn) == x and |n - checkpoint| is minimized, breaking ties toward
// the smaller n. The result is always non-negative.
func unwrap(x WrappingInt32, isn WrappingInt32, checkpoint uint64) uint64 {
	const mod = uint64(1) << 32

	offset := uint64(uint32(x) - uint32(isn))
	era := checkpoint >> 32
	n := era*mod + offset

	if n >= mod && absDiff(n-mod, checkpoint) <= absDiff(n, checkpoint) {
		return n - mod
	}
	if absDiff(n+mod, checkpoint) < absDiff(n, checkpoint) {
		return n + mod
	}
	return n
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
