// Package output renders reports as text, markdown, JSON, TOON, or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
	FormatYAML     Format = "yaml"
)

// ParseFormat converts a name to a Format. Unknown names fall back to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Structured reports whether the format is a machine-readable encoding.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatTOON || f == FormatYAML
}

// Renderable is anything that can render itself for people and expose data
// for the structured encodings.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns the value encoded for JSON, TOON, and YAML.
	RenderData() any
}

// Formatter writes values in one format to stdout or a file.
type Formatter struct {
	format  Format
	w       io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a formatter. A non-empty path is created or
// truncated and disables color.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	f := &Formatter{format: format, w: os.Stdout, colored: colored}
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		f.w = file
		f.file = file
		f.colored = false
	}
	return f, nil
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Writer returns the destination.
func (f *Formatter) Writer() io.Writer {
	return f.w
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Colored reports whether text output uses color.
func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes v. Renderables draw themselves for text and markdown; every
// other value, and every value in a structured format, is encoded.
func (f *Formatter) Output(v any) error {
	if r, ok := v.(Renderable); ok {
		switch f.format {
		case FormatText:
			return r.RenderText(f.w, f.colored)
		case FormatMarkdown:
			return r.RenderMarkdown(f.w)
		}
		v = r.RenderData()
	}
	return f.encode(v)
}

func (f *Formatter) encode(v any) error {
	switch f.format {
	case FormatTOON:
		out, err := toon.Marshal(v, toon.WithIndent(2))
		if err != nil {
			return err
		}
		if _, err := f.w.Write(out); err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.w)
		return err

	case FormatYAML:
		enc := yaml.NewEncoder(f.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()

	case FormatMarkdown:
		fmt.Fprintln(f.w, "```json")
		if err := f.encodeJSON(v); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.w, "```")
		return err

	default:
		return f.encodeJSON(v)
	}
}

func (f *Formatter) encodeJSON(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success, Warning, Error, and Info print one status line. Without color
// the severity is spelled out instead.

func (f *Formatter) Success(format string, args ...any) {
	f.message(color.FgGreen, "", format, args...)
}

func (f *Formatter) Warning(format string, args ...any) {
	f.message(color.FgYellow, "WARNING: ", format, args...)
}

func (f *Formatter) Error(format string, args ...any) {
	f.message(color.FgRed, "ERROR: ", format, args...)
}

func (f *Formatter) Info(format string, args ...any) {
	f.message(color.FgCyan, "", format, args...)
}

func (f *Formatter) message(attr color.Attribute, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if f.colored {
		color.New(attr).Fprintln(f.w, msg)
		return
	}
	fmt.Fprintln(f.w, prefix+msg)
}
