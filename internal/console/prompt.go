package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter asks the operator questions on a line-oriented input.
type Prompter struct {
	in      *bufio.Reader
	printer *Printer
}

// NewPrompter reads answers from in (stdin when nil) and prints questions through printer.
func NewPrompter(in io.Reader, printer *Printer) *Prompter {
	if in == nil {
		in = os.Stdin
	}
	if printer == nil {
		printer = New(nil)
	}
	return &Prompter{in: bufio.NewReader(in), printer: printer}
}

// Ask prints question and returns the trimmed answer.
func (p *Prompter) Ask(question string) (string, error) {
	_, _ = io.WriteString(p.printer.Writer(), p.printer.Sprint(Yellow, question))
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question until the answer starts with y or n.
func (p *Prompter) Confirm(question string) (bool, error) {
	for {
		answer, err := p.Ask(question + " (y/n) ")
		if err != nil {
			return false, err
		}
		switch {
		case strings.HasPrefix(strings.ToUpper(answer), "Y"):
			return true, nil
		case strings.HasPrefix(strings.ToUpper(answer), "N"):
			return false, nil
		}
	}
}
