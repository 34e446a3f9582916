package logic

// DefaultMinKeyLength is the smallest capture that is treated as a real signal.
// Shorter buffers are noise or an empty receiver, not a tiny valid code.
const DefaultMinKeyLength = 200

// ValidKey reports whether key is long enough to be a usable IR code.
func ValidKey(key []byte, minLength int) bool {
	if minLength <= 0 {
		minLength = DefaultMinKeyLength
	}
	return len(key) >= minLength
}
