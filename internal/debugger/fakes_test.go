package debugger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/picodbg/internal/connectors"
	"github.com/skobkin/picodbg/internal/transport"
)

var errFakeClosed = errors.New("fake link closed")

// fakeLink replays scripted chunks. Closing the chunks channel ends the stream.
type fakeLink struct {
	name   string
	chunks chan []byte

	mu       sync.Mutex
	openBaud int
	openErr  error
	writeErr error
	writes   []byte
	closes   int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeLink(name string, chunks ...string) *fakeLink {
	l := &fakeLink{
		name:   name,
		chunks: make(chan []byte, len(chunks)+8),
		closed: make(chan struct{}),
	}
	for _, chunk := range chunks {
		l.chunks <- []byte(chunk)
	}

	return l
}

func (l *fakeLink) Name() string { return l.name }

func (l *fakeLink) Open(baudRate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return l.openErr
	}
	l.openBaud = baudRate
	return nil
}

func (l *fakeLink) Read(p []byte) (int, error) {
	select {
	case chunk, ok := <-l.chunks:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-l.closed:
		return 0, errFakeClosed
	}
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	l.writes = append(l.writes, p...)
	return len(p), nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLink) endStream() { close(l.chunks) }

func (l *fakeLink) written() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.writes...)
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func (l *fakeLink) baud() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openBaud
}

// fakeProvider hands out authorized links in call order; after the script runs out it declines.
type fakeProvider struct {
	mu         sync.Mutex
	authorized [][]transport.Link
	requested  []transport.Link
	listCalls  int
	reqCalls   int
	filters    []transport.PortFilter
}

func (p *fakeProvider) ListAuthorized(context.Context) ([]transport.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if len(p.authorized) == 0 {
		return nil, nil
	}
	links := p.authorized[0]
	p.authorized = p.authorized[1:]
	return links, nil
}

func (p *fakeProvider) RequestAuthorization(_ context.Context, filter transport.PortFilter) (transport.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqCalls++
	p.filters = append(p.filters, filter)
	if len(p.requested) == 0 {
		return nil, transport.ErrDeclined
	}
	link := p.requested[0]
	p.requested = p.requested[1:]
	return link, nil
}

func (p *fakeProvider) calls() (list, req int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls, p.reqCalls
}

type sinkEvent struct {
	state connectors.ConnectionState
	log   *connectors.LogMessage
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) PublishState(state connectors.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{state: state})
}

func (s *recordingSink) PublishLog(msg connectors.LogMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{log: &msg})
}

func (s *recordingSink) states() []connectors.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []connectors.ConnectionState
	for _, e := range s.events {
		if e.log == nil {
			out = append(out, e.state)
		}
	}
	return out
}

func (s *recordingSink) logs() []connectors.LogMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []connectors.LogMessage
	for _, e := range s.events {
		if e.log != nil {
			out = append(out, *e.log)
		}
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runStart(ctx context.Context, s *Session) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	return errCh
}

func waitStartResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not return")
		return nil
	}
}

// openTracker counts links that are open at the same time.
type openTracker struct {
	mu     sync.Mutex
	active int
	max    int
	total  int
}

func (t *openTracker) open() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
	t.total++
	if t.active > t.max {
		t.max = t.active
	}
}

func (t *openTracker) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
}

func (t *openTracker) maxActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

func (t *openTracker) opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

type trackedLink struct {
	*fakeLink
	tracker *openTracker
	once    sync.Once
}

func (l *trackedLink) Open(baudRate int) error {
	if err := l.fakeLink.Open(baudRate); err != nil {
		return err
	}
	l.tracker.open()
	return nil
}

func (l *trackedLink) Close() error {
	l.once.Do(l.tracker.close)
	return l.fakeLink.Close()
}

// slowProvider hands out a fresh authorized link per lookup after a delay.
type slowProvider struct {
	delay   time.Duration
	tracker *openTracker

	mu    sync.Mutex
	links []*trackedLink
}

func (p *slowProvider) ListAuthorized(context.Context) ([]transport.Link, error) {
	time.Sleep(p.delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	link := &trackedLink{fakeLink: newFakeLink("/dev/ttyACM0"), tracker: p.tracker}
	p.links = append(p.links, link)
	return []transport.Link{link}, nil
}

func (p *slowProvider) RequestAuthorization(context.Context, transport.PortFilter) (transport.Link, error) {
	return nil, transport.ErrDeclined
}

func (p *slowProvider) lastLink() *fakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[len(p.links)-1].fakeLink
}

// failingProvider has no authorized links and fails every authorization request.
type failingProvider struct {
	err error
}

func (p *failingProvider) ListAuthorized(context.Context) ([]transport.Link, error) {
	return nil, nil
}

func (p *failingProvider) RequestAuthorization(context.Context, transport.PortFilter) (transport.Link, error) {
	return nil, p.err
}
