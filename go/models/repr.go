package models

import (
	"fmt"
	"strings"
)

// Repr quotes p for trace output, escaping non-printable bytes and cutting
// the result to about strsize characters.
func Repr(p []byte, strsize int) string {
	parts := make([]string, len(p))
	for i, b := range p {
		if b >= 0x20 && b <= 0x7e && b != '"' && b != '\\' {
			parts[i] = string(b)
		} else if b == '\n' {
			parts[i] = "\\n"
		} else {
			parts[i] = fmt.Sprintf("\\x%02x", b)
		}
	}
	out := strings.Join(parts, "")
	if strsize > 0 && len(out) > strsize {
		n := len(parts)
		for n > 0 && len(out) > strsize-3 {
			n--
			out = strings.Join(parts[:n], "")
		}
		return "\"" + out + "\"..."
	}
	return "\"" + out + "\""
}
