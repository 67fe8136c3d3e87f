package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// heading writes a title underlined with rule.
func heading(w io.Writer, title, rule string, colored bool, attrs ...color.Attribute) {
	if title == "" {
		return
	}
	if colored {
		color.New(attrs...).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(rule, len(title)))
}

// Table is a titled table. Data, when set, replaces the rows in structured
// output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  []string
	Data    any
	// Empty is printed instead of the table when there are no rows.
	Empty string
}

// NewTable creates a table.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{
		Title:   title,
		Headers: headers,
		Rows:    rows,
		Footer:  footer,
		Data:    data,
	}
}

// RenderData returns Data, or one header-keyed map per row.
func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	out := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	heading(w, t.Title, "-", colored, color.Bold)
	if len(t.Rows) == 0 && t.Empty != "" {
		fmt.Fprintln(w, t.Empty)
		return nil
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
			},
			Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
			Footer: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.Off},
			},
		}),
	)

	table.Header(t.Headers)
	for _, row := range t.Rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if len(t.Footer) > 0 {
		footer := make([]any, len(t.Footer))
		for i, f := range t.Footer {
			footer[i] = f
		}
		table.Footer(footer...)
	}
	return table.Render()
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}
	if len(t.Rows) == 0 && t.Empty != "" {
		fmt.Fprintf(w, "%s\n\n", t.Empty)
		return nil
	}

	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Headers, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat(" --- |", len(t.Headers)))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	if len(t.Footer) > 0 {
		fmt.Fprintf(w, "| %s |\n", strings.Join(t.Footer, " | "))
	}
	fmt.Fprintln(w)
	return nil
}

// Field is one labelled value in a Summary.
type Field struct {
	Label string `json:"label" yaml:"label" toon:"label"`
	Value string `json:"value" yaml:"value" toon:"value"`
}

// Summary is a titled list of labelled values with aligned labels.
type Summary struct {
	Title  string
	Fields []Field
}

// Add appends a field formatted with fmt.Sprint.
func (s *Summary) Add(label string, value any) *Summary {
	s.Fields = append(s.Fields, Field{Label: label, Value: fmt.Sprint(value)})
	return s
}

// RenderData returns the fields keyed by label.
func (s *Summary) RenderData() any {
	m := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Label] = f.Value
	}
	return m
}

func (s *Summary) RenderText(w io.Writer, colored bool) error {
	heading(w, s.Title, "-", colored, color.Bold)
	width := 0
	for _, f := range s.Fields {
		width = max(width, len(f.Label))
	}
	for _, f := range s.Fields {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, f.Label+":", f.Value)
	}
	return nil
}

func (s *Summary) RenderMarkdown(w io.Writer) error {
	if s.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", s.Title)
	}
	for _, f := range s.Fields {
		fmt.Fprintf(w, "- **%s:** %s\n", f.Label, f.Value)
	}
	fmt.Fprintln(w)
	return nil
}

// Section is a titled block of preformatted lines.
type Section struct {
	Title string   `json:"title,omitempty" yaml:"title,omitempty" toon:"title,omitempty"`
	Lines []string `json:"lines,omitempty" yaml:"lines,omitempty" toon:"lines,omitempty"`
}

func (s *Section) RenderData() any {
	return s
}

func (s *Section) RenderText(w io.Writer, colored bool) error {
	heading(w, s.Title, "-", colored, color.Bold)
	for _, l := range s.Lines {
		fmt.Fprintln(w, l)
	}
	return nil
}

func (s *Section) RenderMarkdown(w io.Writer) error {
	if s.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", s.Title)
	}
	for _, l := range s.Lines {
		fmt.Fprintf(w, "- %s\n", l)
	}
	fmt.Fprintln(w)
	return nil
}

// Report is a titled sequence of parts. Data, when set, is what structured
// formats encode.
type Report struct {
	Title string
	Parts []Renderable
	Data  any
}

func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Parts))
	for i, p := range r.Parts {
		parts[i] = p.RenderData()
	}
	return map[string]any{"title": r.Title, "parts": parts}
}

func (r *Report) RenderText(w io.Writer, colored bool) error {
	heading(w, r.Title, "=", colored, color.Bold, color.FgCyan)
	for _, p := range r.Parts {
		fmt.Fprintln(w)
		if err := p.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) RenderMarkdown(w io.Writer) error {
	if r.Title != "" {
		fmt.Fprintf(w, "# %s\n\n", r.Title)
	}
	for _, p := range r.Parts {
		if err := p.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}
