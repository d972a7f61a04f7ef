package window

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// LineSource yields raw record lines without their line terminator.
// A source that is exhausted returns io.EOF; a source over a growing file
// never does and blocks instead.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

// ReaderSource reads lines from a bounded reader such as a regular file.
// A final line without a trailing newline is still returned.
type ReaderSource struct {
	r *bufio.Reader
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine implements LineSource.
func (s *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return trimEOL(line), nil
		}
		return "", err
	}
	return trimEOL(line), nil
}

// SliceSource serves lines from memory. Pairwise conversion uses it to window
// the records already grouped per peer.
type SliceSource struct {
	lines []string
	pos   int
}

// NewSliceSource serves lines in order.
func NewSliceSource(lines []string) *SliceSource {
	return &SliceSource{lines: lines}
}

// ReadLine implements LineSource.
func (s *SliceSource) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return trimEOL(line), nil
}

// HeaderSkipper drops the first non-blank line of its source, which holds
// column names rather than a record.
type HeaderSkipper struct {
	src     LineSource
	skipped bool
	header  string
}

// SkipHeader wraps src so that its header line is never returned.
func SkipHeader(src LineSource) *HeaderSkipper {
	return &HeaderSkipper{src: src}
}

// ReadLine implements LineSource.
func (s *HeaderSkipper) ReadLine(ctx context.Context) (string, error) {
	for !s.skipped {
		line, err := s.src.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if isBlank(line) {
			continue
		}
		s.header = line
		s.skipped = true
	}
	return s.src.ReadLine(ctx)
}

// Header returns the skipped header line, once it has been read.
func (s *HeaderSkipper) Header() string {
	return s.header
}

// MultiSource reads its sources one after the other.
type MultiSource struct {
	srcs []LineSource
}

// Concat joins bounded sources into one.
func Concat(srcs ...LineSource) *MultiSource {
	return &MultiSource{srcs: srcs}
}

// ReadLine implements LineSource.
func (m *MultiSource) ReadLine(ctx context.Context) (string, error) {
	for len(m.srcs) > 0 {
		line, err := m.srcs[0].ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			m.srcs = m.srcs[1:]
			continue
		}
		return line, err
	}
	return "", io.EOF
}

// Waiter blocks until more data may be available on a growing reader.
type Waiter interface {
	Wait(ctx context.Context) error
}

// StreamSource reads lines from a file that another process is still
// writing. Reaching the end of the file is transient: the source waits and
// retries. A read that ends without a newline means the writer flushed in the
// middle of a line; the fragment is held and joined with whatever follows
// until the newline arrives.
type StreamSource struct {
	r       *bufio.Reader
	waiter  Waiter
	pending strings.Builder
}

// NewStreamSource reads from r and calls waiter whenever r is exhausted.
func NewStreamSource(r io.Reader, waiter Waiter) *StreamSource {
	return &StreamSource{r: bufio.NewReaderSize(r, 64*1024), waiter: waiter}
}

// ReadLine implements LineSource. It only returns an error when ctx is done,
// the waiter fails or the reader fails with something other than io.EOF.
func (s *StreamSource) ReadLine(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		chunk, err := s.r.ReadString('\n')
		s.pending.WriteString(chunk)
		if err == nil {
			line := trimEOL(s.pending.String())
			s.pending.Reset()
			return line, nil
		}
		if !errors.Is(err, io.EOF) {
			return "", err
		}

		if err := s.waiter.Wait(ctx); err != nil {
			return "", err
		}
	}
}

// Pending returns the fragment of an unterminated line read so far.
func (s *StreamSource) Pending() string {
	return s.pending.String()
}

func trimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
