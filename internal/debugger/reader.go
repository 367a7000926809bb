package debugger

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/skobkin/picodbg/internal/transport"
)

const readBufferSize = 256

// ReadKind tells the read loop what a ReadResult carries.
type ReadKind int

const (
	ReadLine ReadKind = iota
	ReadStreamEnded
	ReadError
)

type ReadResult struct {
	Kind ReadKind
	Line string
	Err  error
}

// Continue reports whether the loop should keep reading after this result.
// Stream end and read errors lead to the same exit.
func (r ReadResult) Continue() bool {
	return r.Kind == ReadLine
}

// LineReader pulls device output through a fresh LineFramer.
type LineReader struct {
	src    io.Reader
	framer *transport.LineFramer
	buf    []byte

	queue     []string
	ended     bool
	err       error
	cancelled atomic.Bool
}

func NewLineReader(src io.Reader) *LineReader {
	return &LineReader{
		src:    src,
		framer: transport.NewLineFramer(),
		buf:    make([]byte, readBufferSize),
	}
}

// Next blocks until a full line is available, the stream ends or the read fails.
// Lines completed before a read error are still returned first.
func (r *LineReader) Next() ReadResult {
	for {
		if len(r.queue) > 0 {
			line := r.queue[0]
			r.queue = r.queue[1:]
			return ReadResult{Kind: ReadLine, Line: line}
		}
		if r.err != nil {
			return ReadResult{Kind: ReadError, Err: r.err}
		}
		if r.ended || r.cancelled.Load() {
			return ReadResult{Kind: ReadStreamEnded}
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.framer.Transform(string(r.buf[:n]))...)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			r.queue = append(r.queue, r.framer.Flush()...)
			r.ended = true
			continue
		}
		r.err = err
	}
}

// Cancel stops the reader at the next result boundary. It never fails.
func (r *LineReader) Cancel() error {
	r.cancelled.Store(true)
	return nil
}
