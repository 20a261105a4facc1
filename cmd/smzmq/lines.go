package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/wippyai/wasm-zmq/extension"
)

// runLines executes console commands read from in, one per line, and
// dispatches poll results between them. After the input ends it keeps
// dispatching until no poll is pending, ctx ends, or linger elapses
// (when positive).
func runLines(ctx context.Context, ext *extension.Extension, in io.Reader, out io.Writer, linger time.Duration) error {
	c := newConsole(ext, func(s string) { fmt.Fprintln(out, s) })

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	queue := ext.Queue()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				break
			}
			res, err := c.exec(line)
			switch {
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			case res != "":
				fmt.Fprintln(out, res)
			}
		case <-queue.Ready():
			ext.Dispatch(ctx)
		case <-ctx.Done():
			return nil
		}
	}

	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("read commands: %w", err)
		}
	default:
	}

	var deadline <-chan time.Time
	if linger > 0 {
		timer := time.NewTimer(linger)
		defer timer.Stop()
		deadline = timer.C
	}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		ext.Dispatch(ctx)
		if ext.Supervisor().Len() == 0 && queue.Len() == 0 {
			return nil
		}
		select {
		case <-queue.Ready():
		case <-tick.C:
		case <-deadline:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
