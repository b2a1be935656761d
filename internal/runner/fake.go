package runner

import (
	"context"
	"strings"
	"sync"
)

// Handler answers a command issued to a Fake.
type Handler func(cmd Cmd) (Result, error)

// Fake is an in-memory Runner that records every command and answers through a
// Handler. Commands without a handler succeed with no output.
type Fake struct {
	mu       sync.Mutex
	handler  Handler
	commands []Cmd
}

// NewFake constructs a Fake answering with h (which may be nil).
func NewFake(h Handler) *Fake {
	return &Fake{handler: h}
}

// Run records cmd and delegates to the handler.
func (f *Fake) Run(_ context.Context, cmd Cmd) (Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	h := f.handler
	f.mu.Unlock()

	if h == nil {
		return Result{}, nil
	}
	res, err := h(cmd)
	if cmd.Output != nil && len(res.Lines) > 0 {
		_, _ = cmd.Output.Write([]byte(strings.Join(res.Lines, "\n") + "\n"))
	}
	return res, err
}

// Commands returns the recorded commands rendered as "name arg1 arg2".
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		out = append(out, c.String())
	}
	return out
}

// Calls returns the recorded commands.
func (f *Fake) Calls() []Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Cmd(nil), f.commands...)
}
