package generate

import "strings"

const (
	fenceBash = "```bash"
	fence     = "```"
)

// StripFences turns a raw model reply into a single command line by removing
// a Markdown code fence around it. Only the exact start and end of the text
// are examined. Applying it to its own output is a no-op.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, fenceBash) {
		s = s[len(fenceBash):]
	} else if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
	}
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}
