package synthesis

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// ConsoleRenderer "speaks" by writing the utterance word by word, paced like speech.
type ConsoleRenderer struct {
	W         io.Writer
	Prefix    string
	WordDelay time.Duration
}

func (c ConsoleRenderer) Render(ctx context.Context, text string) error {
	words := strings.Fields(text)
	if c.Prefix != "" {
		if _, err := io.WriteString(c.W, c.Prefix); err != nil {
			return err
		}
	}
	for i, w := range words {
		if i > 0 {
			select {
			case <-ctx.Done():
				_, _ = io.WriteString(c.W, " …\n")
				return ctx.Err()
			case <-time.After(c.WordDelay):
			}
			w = " " + w
		}
		if _, err := io.WriteString(c.W, w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(c.W)
	return err
}
