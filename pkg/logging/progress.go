package logging

import (
	"fmt"
	"io"
	"sync"
)

// StatusLine rewrites a single terminal line with harvest progress. It
// implements pagination.Progress.
type StatusLine struct {
	mu      sync.Mutex
	out     io.Writer
	written bool
}

// NewStatusLine creates a status line writing to out.
func NewStatusLine(out io.Writer) *StatusLine {
	return &StatusLine{out: out}
}

// Update redraws the line.
func (s *StatusLine) Update(fetched, current int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, "\rFetched: %d pages (current: page %d)", fetched, current)
	s.written = true
}

// Done ends the line so later output starts on a fresh one.
func (s *StatusLine) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written {
		fmt.Fprintln(s.out)
		s.written = false
	}
}

// Summary formats the final message of a run.
func Summary(pages int, location string) string {
	return fmt.Sprintf("Completed! %d pages of results saved to %s", pages, location)
}
