package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/skobkin/picodbg/internal/transport"
)

// PortPrompt asks on the terminal which of the matching ports to authorize.
type PortPrompt struct {
	input *Input
	out   io.Writer
}

func NewPortPrompt(input *Input, out io.Writer) *PortPrompt {
	return &PortPrompt{input: input, out: out}
}

// Choose lists the candidates and reads a 1-based index. An empty answer or "q" declines.
func (p *PortPrompt) Choose(ctx context.Context, candidates []transport.PortInfo) (transport.PortInfo, bool, error) {
	if len(candidates) == 0 {
		return transport.PortInfo{}, false, nil
	}

	_, _ = fmt.Fprintln(p.out, "Select the device port:")
	for i, c := range candidates {
		_, _ = fmt.Fprintf(p.out, "  %d) %s\n", i+1, c.Label())
	}

	for {
		_, _ = fmt.Fprintf(p.out, "Port [1-%d, empty to cancel]: ", len(candidates))
		answer, err := p.input.Prompt(ctx)
		if err != nil {
			if errors.Is(err, ErrInputClosed) {
				return transport.PortInfo{}, false, nil
			}
			return transport.PortInfo{}, false, err
		}

		idx, ok, valid := parseChoice(answer, len(candidates))
		if !valid {
			_, _ = fmt.Fprintf(p.out, "Invalid choice %q.\n", answer)
			continue
		}
		if !ok {
			return transport.PortInfo{}, false, nil
		}

		return candidates[idx], true, nil
	}
}

func parseChoice(answer string, count int) (idx int, ok bool, valid bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, "q") {
		return 0, false, true
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > count {
		return 0, false, false
	}

	return n - 1, true, true
}

var _ transport.Chooser = (*PortPrompt)(nil)
