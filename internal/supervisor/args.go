package supervisor

import (
	"strings"
)

// SplitArgs splits a raw argument string into arguments. Whitespace separates
// arguments, double quotes group, and \" is a literal quote.
func SplitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		inToken bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == '"':
			cur.WriteByte('"')
			inToken = true
			i++
		case c == '"':
			quoted = !quoted
			inToken = true
		case !quoted && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args
}

// matchName reports whether a process image name is in names. Comparison
// ignores case and a trailing ".exe".
func matchName(image string, names []string) bool {
	image = strings.TrimSuffix(strings.ToLower(image), ".exe")
	for _, n := range names {
		if image == strings.TrimSuffix(strings.ToLower(n), ".exe") {
			return true
		}
	}
	return false
}
