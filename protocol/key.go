package protocol

// ValidateKey checks that key is usable in a request line: 1 to 250 bytes,
// no whitespace or control bytes. The wire parser itself only enforces the
// length cap (any non-delimiter byte is accepted as key material); this is
// for callers populating a store or building requests, where a bad key
// would produce lines the parser tokenizes differently than intended.
func ValidateKey(key []byte) error {
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for _, b := range key {
		if b <= 32 || b == 127 {
			return ErrKeyInvalidByte
		}
	}
	return nil
}
