package main

import "github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/ui"

func main() {
	// Must run before lipgloss/bubbletea touch the terminal.
	ui.InitTerminal()

	Execute()
}
