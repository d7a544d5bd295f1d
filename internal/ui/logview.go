package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/nxadm/tail"
)

// levelRE finds the level of a slog record in either the JSON or text form.
var levelRE = regexp.MustCompile(`"level":"([A-Z]+)"|level=([A-Z]+)`)

// ColorizeLogLine colours a provisioner log record by its level.
func ColorizeLogLine(c *ColorConfig, line string) string {
	m := levelRE.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	level := m[1] + m[2]
	switch level {
	case "ERROR":
		return c.Error(line)
	case "WARN":
		return c.Warning(line)
	case "DEBUG":
		return c.Description(line)
	}
	return line
}

// PrintLogTail writes the last n lines of path to out.
func PrintLogTail(out io.Writer, c *ColorConfig, path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// allow long log lines up to 512 KiB
	bufSize := 512 * 1024
	scanner.Buffer(make([]byte, bufSize), bufSize)
	ring := make([]string, 0, n)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring[len(ring)-1] = scanner.Text()
		} else {
			ring = append(ring, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, line := range ring {
		fmt.Fprintln(out, ColorizeLogLine(c, line))
	}
	return nil
}

// FollowLog streams new lines of path to out until ctx is cancelled. The file
// may not exist yet and may be rotated underneath.
func FollowLog(ctx context.Context, out io.Writer, c *ColorConfig, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok || line == nil {
				if err := t.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(out, ColorizeLogLine(c, strings.TrimRight(line.Text, "\r")))
		}
	}
}
