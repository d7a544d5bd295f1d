package ui

// Options are the presentation flags shared by every command.
type Options struct {
	NoColor bool
	NoEmoji bool
}

var global Options

// InitGlobal records the presentation flags once flags are parsed.
func InitGlobal(o Options) { global = o }

// NewColorConfigFromGlobal applies the global flags on top of the
// environment (NO_COLOR, TERM).
func NewColorConfigFromGlobal() *ColorConfig {
	c := NewColorConfig()
	c.Enabled = c.Enabled && !global.NoColor
	c.EmojiEnabled = c.EmojiEnabled && !global.NoEmoji
	return c
}

// NewPrinterFromGlobal returns a Printer for format styled by the global flags.
func NewPrinterFromGlobal(format string) Printer {
	p := NewPrinter(format)
	p.Colors = NewColorConfigFromGlobal()
	return p
}
