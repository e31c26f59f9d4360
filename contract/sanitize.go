package contract

import "regexp"

// stackTracePattern and filePathPattern strip implementation detail
// out of error messages before they reach ErrInternal.With. An
// underlying KV driver error can legitimately contain a stack frame or
// a file:line reference; neither, nor KV topology such as a dial
// address, is safe to surface to a caller.
var (
	stackTracePattern = regexp.MustCompile(`(?m)^\s*at\s+.*$|^\s*goroutine\s+\d+.*$|^\s*\S+\.go:\d+.*$`)
	filePathPattern   = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+\.go:\d+)|([A-Z]:\\[a-zA-Z0-9_\-\\./]+\.go:\d+)`)
	addrPattern       = regexp.MustCompile(`\b(?:[a-zA-Z0-9.-]+:\d{2,5}|(?:\d{1,3}\.){3}\d{1,3})\b`)
)

// sanitizeMessage removes stack traces, file paths, and host:port /
// bare-IP topology hints from msg, returning a generic fallback if
// nothing usable remains.
func sanitizeMessage(msg string) string {
	msg = stackTracePattern.ReplaceAllString(msg, "")
	msg = filePathPattern.ReplaceAllString(msg, "")
	msg = addrPattern.ReplaceAllString(msg, "")

	msg = collapseSpace(msg)
	if msg == "" {
		return "internal error"
	}
	return msg
}

func collapseSpace(s string) string {
	var b []byte
	lastSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		isSpace := c == ' ' || c == '\t' || c == '\n' || c == '\r'
		if isSpace {
			if !lastSpace && len(b) > 0 {
				b = append(b, ' ')
			}
			lastSpace = true
			continue
		}
		b = append(b, c)
		lastSpace = false
	}
	for len(b) > 0 && b[len(b)-1] == ' ' {
		b = b[:len(b)-1]
	}
	return string(b)
}
