package domain

// Zero overwrites each buffer with zeros. Plaintext keys are zeroed as soon as
// the operation that needed them returns.
func Zero(buffers ...[]byte) {
	for _, b := range buffers {
		clear(b)
	}
}
