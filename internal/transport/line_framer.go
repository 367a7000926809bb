package transport

import "strings"

// LineFramer splits an arbitrarily chunked text stream into lines.
// Any of "\r\n", "\r" and "\n" terminates a line. A LineFramer is not safe for concurrent use.
type LineFramer struct {
	pending strings.Builder
	// skipLF is set after a "\r" so a "\n" opening the next chunk completes "\r\n".
	skipLF bool
}

func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Transform appends chunk and returns every line completed by it.
// A "\r" ends its line immediately.
func (f *LineFramer) Transform(chunk string) []string {
	var lines []string
	for chunk != "" {
		if f.skipLF {
			f.skipLF = false
			if chunk[0] == '\n' {
				chunk = chunk[1:]
				continue
			}
		}

		i := strings.IndexAny(chunk, "\r\n")
		if i < 0 {
			f.pending.WriteString(chunk)
			break
		}
		f.pending.WriteString(chunk[:i])
		lines = append(lines, f.take())
		f.skipLF = chunk[i] == '\r'
		chunk = chunk[i+1:]
	}

	return sanitizeLines(lines)
}

// Flush returns the remaining partial line, even when it is empty, and resets the framer.
func (f *LineFramer) Flush() []string {
	f.skipLF = false

	return sanitizeLines([]string{f.take()})
}

func (f *LineFramer) take() string {
	line := f.pending.String()
	f.pending.Reset()

	return line
}

func sanitizeLines(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.ToValidUTF8(line, "\uFFFD")
	}

	return out
}
