package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Printer centralizes output formatting for commands.
// - Respects --output (text|json|yaml)
// - Uses ColorConfig for styling when printing text
type Printer struct {
	format string
	out    io.Writer
	Colors *ColorConfig
}

func NewPrinter(format string) Printer {
	return Printer{format: format, out: os.Stdout, Colors: NewColorConfig()}
}

// WithWriter returns a copy of p that writes to w.
func (p Printer) WithWriter(w io.Writer) Printer {
	p.out = w
	return p
}

// Format is the requested output format.
func (p Printer) Format() string {
	if p.format == "" {
		return "text"
	}
	return p.format
}

func (p Printer) w() io.Writer {
	if p.out == nil {
		return os.Stdout
	}
	return p.out
}

// Textf prints formatted text (always text path).
func (p Printer) Textf(format string, a ...any) { fmt.Fprintf(p.w(), format, a...) }

// JSON pretty-prints a JSON value.
func (p Printer) JSON(v any) {
	enc := json.NewEncoder(p.w())
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// YAML prints v as a YAML document.
func (p Printer) YAML(v any) {
	enc := yaml.NewEncoder(p.w())
	enc.SetIndent(2)
	_ = enc.Encode(v)
	_ = enc.Close()
}

// Structured prints v as JSON or YAML and reports true, or reports false
// when the format is text and the caller should render it.
func (p Printer) Structured(v any) bool {
	switch p.Format() {
	case "json":
		p.JSON(v)
		return true
	case "yaml":
		p.YAML(v)
		return true
	}
	return false
}

func (p Printer) tagged(emoji, ascii string, color func(string) string, msg string) {
	tag := ascii
	if p.Colors.EmojiEnabled {
		tag = emoji
	}
	fmt.Fprintln(p.w(), color(tag), msg)
}

func (p Printer) Success(msg string) { p.tagged("✓", "[OK]", p.Colors.Success, msg) }

func (p Printer) Info(msg string) { p.tagged("ℹ", "[INFO]", p.Colors.Info, msg) }

func (p Printer) Warn(msg string) { p.tagged("!", "[WARN]", p.Colors.Warning, msg) }

func (p Printer) Error(msg string) { p.tagged("✗", "[ERR]", p.Colors.Error, msg) }

// Header prints a section header.
func (p Printer) Header(title string) {
	fmt.Fprintln(p.w(), p.Colors.Header(" "+title+" "))
}

// Separator prints a themed separator line of n characters.
func (p Printer) Separator(n int) { fmt.Fprintln(p.w(), p.Colors.Separator(n)) }

// Section prints a section header with separator
func (p Printer) Section(title string) {
	fmt.Fprintln(p.w())
	fmt.Fprintln(p.w(), p.Colors.SubHeader(title))
	fmt.Fprintln(p.w(), p.Colors.Separator(40))
}

// KeyValueLine prints a key-value pair with proper formatting
func (p Printer) KeyValueLine(key, value, colorType string) {
	var colored string
	switch colorType {
	case "blue":
		colored = p.Colors.Info(value)
	case "yellow":
		colored = p.Colors.Warning(value)
	case "green":
		colored = p.Colors.Success(value)
	case "dim":
		colored = p.Colors.Description(value)
	default:
		colored = p.Colors.Value(value)
	}
	fmt.Fprintf(p.w(), "%s %s\n", p.Colors.Label(key+":"), colored)
}
