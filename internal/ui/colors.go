package ui

import (
	"fmt"
	"os"
	"strings"
)

// Color codes for terminal output
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"

	BrightBlack   = "\033[90m"
	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
)

// Theme defines the color scheme for different UI elements
type Theme struct {
	Success string
	Warning string
	Error   string
	Info    string

	Header      string
	SubHeader   string
	Label       string
	Value       string
	Command     string
	Description string
	Separator   string

	Progress string
	Complete string
	Pending  string
}

// DefaultTheme returns the default color theme
func DefaultTheme() *Theme {
	return &Theme{
		Success: BrightGreen,
		Warning: BrightYellow,
		Error:   BrightRed,
		Info:    BrightCyan,

		Header:      Bold + BrightCyan,
		SubHeader:   Bold + Cyan,
		Label:       Bold, // terminal default foreground stays readable on any background
		Value:       "",
		Command:     BrightGreen,
		Description: BrightBlack,
		Separator:   BrightBlack,

		Progress: BrightYellow,
		Complete: BrightGreen,
		Pending:  BrightBlack,
	}
}

// ColorConfig manages color output settings
type ColorConfig struct {
	Enabled      bool
	EmojiEnabled bool
	Theme        *Theme
}

// NewColorConfig honours NO_COLOR and dumb terminals.
func NewColorConfig() *ColorConfig {
	noColor := os.Getenv("NO_COLOR") != ""
	term := os.Getenv("TERM")
	return &ColorConfig{
		Enabled:      !noColor && term != "dumb" && term != "",
		EmojiEnabled: true,
		Theme:        DefaultTheme(),
	}
}

// Apply applies a color to text if colors are enabled
func (c *ColorConfig) Apply(color, text string) string {
	if !c.Enabled || color == "" {
		return text
	}
	return color + text + Reset
}

func (c *ColorConfig) Success(text string) string { return c.Apply(c.Theme.Success, text) }

func (c *ColorConfig) Warning(text string) string { return c.Apply(c.Theme.Warning, text) }

func (c *ColorConfig) Error(text string) string { return c.Apply(c.Theme.Error, text) }

func (c *ColorConfig) Info(text string) string { return c.Apply(c.Theme.Info, text) }

func (c *ColorConfig) Header(text string) string { return c.Apply(c.Theme.Header, text) }

func (c *ColorConfig) SubHeader(text string) string { return c.Apply(c.Theme.SubHeader, text) }

func (c *ColorConfig) Label(text string) string { return c.Apply(c.Theme.Label, text) }

func (c *ColorConfig) Value(text string) string { return c.Apply(c.Theme.Value, text) }

func (c *ColorConfig) Command(text string) string { return c.Apply(c.Theme.Command, text) }

func (c *ColorConfig) Description(text string) string { return c.Apply(c.Theme.Description, text) }

// FormatKeyValue formats a key-value pair with proper colors
func (c *ColorConfig) FormatKeyValue(key, value string) string {
	return fmt.Sprintf("%s: %s", c.Label(key), c.Value(value))
}

// FormatCommand formats a command with its description
func (c *ColorConfig) FormatCommand(cmd, desc string) string {
	return fmt.Sprintf("  %s  %s", c.Command(cmd), c.Description(desc))
}

// FormatCommandAligned pads cmd to width so descriptions line up.
func (c *ColorConfig) FormatCommandAligned(cmd, desc string, width int) string {
	pad := width - len(cmd)
	if pad < 1 {
		pad = 1
	}
	return "  " + c.Command(cmd) + strings.Repeat(" ", pad) + c.Description(desc)
}

// Separator returns a colored separator line
func (c *ColorConfig) Separator(width int) string {
	return c.Apply(c.Theme.Separator, strings.Repeat("─", width))
}

// StatusIcon maps step and check statuses to an icon. Without emoji it falls
// back to bracketed ASCII tags.
func (c *ColorConfig) StatusIcon(status string) string {
	type icon struct{ emoji, ascii, color string }
	var ic icon
	switch strings.ToLower(status) {
	case "applied", "ok", "pass", "success":
		ic = icon{"✓", "[OK]", c.Theme.Success}
	case "skipped":
		ic = icon{"≡", "[SKIP]", c.Theme.Description}
	case "change":
		ic = icon{"~", "[CHG]", c.Theme.Warning}
	case "warn", "warning":
		ic = icon{"!", "[WARN]", c.Theme.Warning}
	case "failed", "fail", "error":
		ic = icon{"✗", "[ERR]", c.Theme.Error}
	case "unknown":
		ic = icon{"?", "[??]", c.Theme.Warning}
	case "running":
		ic = icon{"▸", "[..]", c.Theme.Progress}
	default:
		ic = icon{"○", "[ ]", c.Theme.Pending}
	}
	if !c.EmojiEnabled {
		return c.Apply(ic.color, ic.ascii)
	}
	return c.Apply(ic.color, ic.emoji)
}
