package memsec

// Memcmp compares a and b as unsigned byte strings and returns -1, 0 or +1,
// with the same ordering as bytes.Compare.
//
// The common prefix is scanned in full without data-dependent branches: gt
// latches "a > b" at the first differing byte and eq stays 1 only while
// every byte so far has matched. When the prefix is equal the shorter input
// orders first; lengths are not treated as secret.
func Memcmp(a, b []byte) int {
	la, lb := len(a), len(b)
	n := min(la, lb)

	var gt uint32
	eq := uint32(1)
	for i := 0; i < n; i++ {
		x1, x2 := uint32(a[i]), uint32(b[i])
		// x2-x1 wraps (setting bits above 8) exactly when x1 > x2.
		gt |= ((x2 - x1) >> 8) & 1 & eq
		// (x1^x2)-1 wraps exactly when the bytes are equal.
		eq &= ((x2 ^ x1) - 1) >> 8 & 1
	}

	r := int(gt+gt+eq) - 1
	if r != 0 {
		return r
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return 0
}
