package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ErrInputClosed is returned by Prompt once the input stream has ended.
var ErrInputClosed = errors.New("input closed")

// Input reads lines from the terminal and routes each one either to a pending
// prompt or to the command channel.
type Input struct {
	logger   *slog.Logger
	commands chan string

	mu     sync.Mutex
	waiter chan string
	closed chan struct{}
}

func NewInput(r io.Reader, logger *slog.Logger) *Input {
	if logger == nil {
		logger = slog.Default().With("component", "input")
	}
	in := &Input{
		logger:   logger,
		commands: make(chan string, 16),
		closed:   make(chan struct{}),
	}
	go in.scan(r)

	return in
}

func (in *Input) scan(r io.Reader) {
	defer close(in.closed)
	defer close(in.commands)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		in.mu.Lock()
		waiter := in.waiter
		in.waiter = nil
		in.mu.Unlock()

		if waiter != nil {
			waiter <- line
			continue
		}
		in.commands <- line
	}
	if err := scanner.Err(); err != nil {
		in.logger.Debug("input scan stopped", "error", err)
	}
}

// Commands yields lines that were not claimed by a prompt. It is closed at end of input.
func (in *Input) Commands() <-chan string {
	return in.commands
}

// Prompt claims the next input line.
func (in *Input) Prompt(ctx context.Context) (string, error) {
	waiter := make(chan string, 1)

	in.mu.Lock()
	in.waiter = waiter
	in.mu.Unlock()

	release := func() {
		in.mu.Lock()
		if in.waiter == waiter {
			in.waiter = nil
		}
		in.mu.Unlock()
	}

	select {
	case line := <-waiter:
		return line, nil
	case <-in.closed:
		release()
		select {
		case line := <-waiter:
			return line, nil
		default:
		}
		return "", ErrInputClosed
	case <-ctx.Done():
		release()
		return "", ctx.Err()
	}
}
