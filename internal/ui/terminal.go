package ui

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"
)

var terminalReady bool

// InitTerminal must run before lipgloss or bubbletea touch stdout. Presetting
// COLORFGBG stops termenv from sending an OSC 11 background query whose reply
// would otherwise land in our output.
func InitTerminal() {
	if terminalReady {
		return
	}
	terminalReady = true

	if os.Getenv("COLORFGBG") == "" {
		os.Setenv("COLORFGBG", "0;15")
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprint(os.Stdout, "\033[?1004l") // focus reporting off
		time.Sleep(20 * time.Millisecond)
		DrainInput(150 * time.Millisecond)
	}
}

// ResetTerminalAfterTUI restores cursor and input modes once the apply view
// exits, then drains late terminal replies (cursor reports, focus events).
func ResetTerminalAfterTUI() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	for _, seq := range []string{
		"\033[?1004l", // focus reporting
		"\033[?1003l", // any-event mouse
		"\033[?1000l", // X10 mouse
		"\033[?1006l", // SGR mouse
		"\033[?25h",   // show cursor
		"\r",
	} {
		fmt.Fprint(os.Stdout, seq)
	}
	time.Sleep(30 * time.Millisecond)
	DrainInput(150 * time.Millisecond)
}

// DrainInput discards whatever arrives on stdin for d. It never reads from a
// pipe, so `curl ... | sudo lemp-provision apply -y` keeps its input.
func DrainInput(d time.Duration) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		return
	}
	defer syscall.SetNonblock(fd, false)

	buf := make([]byte, 256)
	for deadline := time.Now().Add(d); time.Now().Before(deadline); {
		if n, _ := os.Stdin.Read(buf); n <= 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
}
