package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// ConsoleSender prints spike events as multi-line text blocks, normally to
// stdout.
type ConsoleSender struct {
	out io.Writer
}

// NewConsoleSender creates a ConsoleSender writing to out.
func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

// Send writes the event's formatted block followed by a newline.
func (c *ConsoleSender) Send(_ context.Context, ev domain.SpikeEvent) error {
	if _, err := fmt.Fprintln(c.out, ev.FormatMessage()); err != nil {
		return fmt.Errorf("console: write alert: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (c *ConsoleSender) Name() string {
	return "console"
}
