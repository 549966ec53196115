package notify

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes s for the CallMeBot text parameter. Space
// becomes '+', ASCII letters and digits pass through, and every other
// byte (including each byte of a multi-byte UTF-8 sequence) becomes
// %XX with uppercase hex.
//
// This is stricter than url.QueryEscape, which leaves '-', '_', '.'
// and '~' unescaped.
func Encode(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) && s[i] != ' ' {
			n++
		}
	}
	if n == 0 {
		b := []byte(s)
		for i := range b {
			if b[i] == ' ' {
				b[i] = '+'
			}
		}
		return string(b)
	}

	out := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			out = append(out, '+')
		case isAlnum(c):
			out = append(out, c)
		default:
			out = append(out, '%', upperhex[c>>4], upperhex[c&0x0f])
		}
	}
	return string(out)
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}
