package memsec

// Memeq reports whether a and b hold the same bytes. Every byte pair is
// visited and the result is only inspected after the scan, so the running
// time depends on the length alone. Slices of different lengths are unequal;
// lengths are not treated as secret.
func Memeq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var d byte
	for i := range a {
		d |= a[i] ^ b[i]
	}
	return d == 0
}
