package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/casualjim/hubtrigger/trigger"
	"github.com/fatih/color"
)

// Console prints causes instead of scheduling builds.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ trigger.Scheduler = (*Console)(nil)

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Schedule(_ context.Context, cause trigger.Cause) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "%s: %s\n", color.CyanString(cause.Trigger), cause.ShortDescription()); err != nil {
		return err
	}
	if len(cause.Body) > 0 {
		if _, err := fmt.Fprintf(c.out, "%s%s\n", color.YellowString("body: "), cause.Body); err != nil {
			return err
		}
	}
	return nil
}
