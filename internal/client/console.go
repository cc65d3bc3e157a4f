package client

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	systemPrefix  = "SYSTEM: "
	errorPrefix   = "ERROR: "
	privatePrefix = "[PM] "
)

// Console is a Display that writes to a terminal, colouring server notices,
// errors and private messages.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	system  *color.Color
	failure *color.Color
	private *color.Color
	status  *color.Color
}

// NewConsole returns a Console writing to out. Colours are off when out is
// not a terminal; otherwise they follow color.NoColor, which honours NO_COLOR.
func NewConsole(out io.Writer) *Console {
	c := &Console{
		out:     out,
		system:  color.New(color.FgCyan),
		failure: color.New(color.FgRed, color.Bold),
		private: color.New(color.FgMagenta),
		status:  color.New(color.FgYellow),
	}
	if !isTerminal(out) {
		for _, col := range []*color.Color{c.system, c.failure, c.private, c.status} {
			col.DisableColor()
		}
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) ShowLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.HasPrefix(line, systemPrefix):
		_, _ = c.system.Fprintln(c.out, line)
	case strings.HasPrefix(line, errorPrefix):
		_, _ = c.failure.Fprintln(c.out, line)
	case strings.HasPrefix(line, privatePrefix):
		_, _ = c.private.Fprintln(c.out, line)
	default:
		_, _ = fmt.Fprintln(c.out, line)
	}
}

func (c *Console) ShowStatus(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.status.Fprintln(c.out, systemPrefix+message)
}
