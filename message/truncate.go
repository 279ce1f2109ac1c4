package message

// TruncateChars shortens s to at most n characters. Length limits across
// the pipeline are character counts, so truncation must never land inside
// a multi-byte rune.
func TruncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
