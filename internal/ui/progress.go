package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"
)

func flushStdin() { DrainInput(30 * time.Millisecond) }

// ProgressBar reports download progress outside the apply view. On a
// terminal it redraws one line; elsewhere it prints a line per 10%.
type ProgressBar struct {
	out     io.Writer
	total   int64
	current int64
	started time.Time
	drawn   time.Time
	tty     bool
	bar     progress.Model
	step    int // last 10% step printed (non-TTY)
	indent  string
	label   string
}

// NewProgressBar tracks a transfer of total bytes. A total <= 0 means the
// size is unknown and only the byte count is shown.
func NewProgressBar(out io.Writer, total int64) *ProgressBar {
	if out == nil {
		out = os.Stdout
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	if tty {
		fmt.Fprint(out, "\033[?1004l")
		flushStdin()
	}
	return &ProgressBar{
		out:     out,
		total:   total,
		started: time.Now(),
		tty:     tty,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(30)),
		step:    -1,
		indent:  "  ",
		label:   "Downloading",
	}
}

func (p *ProgressBar) SetIndent(indent string) { p.indent = indent }

// SetLabel replaces the "Downloading" prefix.
func (p *ProgressBar) SetLabel(label string) { p.label = label }

// Update records current bytes and redraws at most ten times a second.
func (p *ProgressBar) Update(current int64) {
	p.current = current
	now := time.Now()
	if p.tty && now.Sub(p.drawn) < 100*time.Millisecond {
		return
	}
	p.drawn = now

	switch {
	case p.total <= 0:
		fmt.Fprintf(p.out, "\r%s%s... %s", p.indent, p.label, FormatBytes(current))
	case p.tty:
		p.draw()
	default:
		if s := int(p.fraction() * 10); s > p.step {
			p.step = s
			fmt.Fprintf(p.out, "%s%s... %d%%\n", p.indent, p.label, s*10)
		}
	}
}

func (p *ProgressBar) fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	f := float64(p.current) / float64(p.total)
	if f > 1 {
		return 1
	}
	return f
}

func (p *ProgressBar) draw() {
	speed := 0.0
	if secs := time.Since(p.started).Seconds(); secs > 0 {
		speed = float64(p.current) / secs
	}
	eta := "--"
	switch {
	case p.current >= p.total:
		eta = "0s"
	case speed > 0:
		eta = (time.Duration(float64(p.total-p.current)/speed) * time.Second).Round(time.Second).String()
	}
	line := []string{
		p.bar.ViewAs(p.fraction()),
		fmt.Sprintf("%5.1f%%", p.fraction()*100),
		FormatBytes(p.current) + "/" + FormatBytes(p.total),
		FormatSpeed(speed),
		"ETA " + eta,
	}
	// \033[K clears what a longer previous frame left behind
	fmt.Fprintf(p.out, "\r%s%s\033[K", p.indent, strings.Join(line, "  "))
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	switch {
	case p.tty:
		if p.total > 0 {
			p.current = p.total
			p.draw()
		}
		fmt.Fprintln(p.out)
		flushStdin()
	case p.total <= 0:
		fmt.Fprintln(p.out)
	case p.step < 10:
		fmt.Fprintf(p.out, "%s%s... 100%%\n", p.indent, p.label)
	}
}
