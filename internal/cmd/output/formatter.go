// Package output renders command results as tables, JSON, YAML, or Markdown.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	md "github.com/nao1215/markdown"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/rowsync/pkg/errors"
)

// Format is an output format.
type Format string

const (
	// FormatTable renders a table.
	FormatTable Format = "table"
	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
	// FormatMarkdown renders a GitHub-flavored Markdown table, for pasting
	// run reports into tickets and chat.
	FormatMarkdown Format = "markdown"
)

// Align is a column alignment.
type Align int

// Column alignments.
const (
	AlignDefault Align = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// Formatter writes data in one format.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format. Unknown formats render a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: "  "}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown, "md":
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// JSONFormatter writes JSON.
type JSONFormatter struct {
	Indent string
}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if f.Indent != "" {
		enc.SetIndent("", f.Indent)
	}
	return enc.Encode(data)
}

// YAMLFormatter writes YAML.
type YAMLFormatter struct{}

// Format implements Formatter.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	out, err := yaml.MarshalWithOptions(data, yaml.Indent(2), yaml.IndentSequence(false))
	if err != nil {
		return errors.WrapParse("yaml", "", err)
	}
	_, err = w.Write(out)
	return err
}

// Data is a pre-built table.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align
}

// Tabular is implemented by values that know how to lay themselves out as a table.
type Tabular interface {
	Table() Data
}

// TableFormatter writes tables. Values that are neither Data nor Tabular
// are laid out from their struct fields, falling back to JSON.
type TableFormatter struct{}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if d, ok := tableData(data); ok {
		return render(w, d)
	}
	return (&JSONFormatter{Indent: "  "}).Format(w, data)
}

// MarkdownFormatter writes Markdown tables, with the same layout rules and
// JSON fallback as TableFormatter.
type MarkdownFormatter struct{}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(w io.Writer, data any) error {
	d, ok := tableData(data)
	if !ok {
		return (&JSONFormatter{Indent: "  "}).Format(w, data)
	}
	return md.NewMarkdown(w).Table(md.TableSet{Header: d.Headers, Rows: d.Rows}).Build()
}

func tableData(data any) (Data, bool) {
	switch v := data.(type) {
	case Data:
		return v, true
	case Tabular:
		return v.Table(), true
	}
	return reflectTable(data)
}

func render(w io.Writer, data Data) error {
	cfg := tablewriter.Config{}
	if len(data.ColumnAlignment) > 0 {
		align := make([]tw.Align, len(data.ColumnAlignment))
		for i, a := range data.ColumnAlignment {
			switch a {
			case AlignLeft:
				align[i] = tw.AlignLeft
			case AlignCenter:
				align[i] = tw.AlignCenter
			case AlignRight:
				align[i] = tw.AlignRight
			default:
				align[i] = tw.Skip
			}
		}
		cfg.Header.Alignment = tw.CellAlignment{PerColumn: align}
		cfg.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}

	table := tablewriter.NewTable(w, tablewriter.WithConfig(cfg))
	if len(data.Headers) > 0 {
		table.Header(toAny(data.Headers)...)
	}
	for _, row := range data.Rows {
		if err := table.Append(toAny(row)...); err != nil {
			return err
		}
	}
	return table.Render()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// DetectFormat returns explicit when set, a table on a terminal, and JSON otherwise.
func DetectFormat(explicit string) Format {
	if explicit != "" {
		return Format(strings.ToLower(explicit))
	}
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return FormatTable
	}
	return FormatJSON
}

// ParseFormat validates s as a format name. The empty string means auto-detect.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(s))
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatMarkdown, "":
		return format, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", errors.NewValidationError("format", s, "must be one of: table, json, yaml, markdown")
}

// reflectTable lays out a struct as property/value rows, or a slice of
// structs as one row per element.
func reflectTable(data any) (Data, bool) {
	v := reflect.Indirect(reflect.ValueOf(data))
	switch {
	case v.Kind() == reflect.Struct:
		d := Data{Headers: []string{"Property", "Value"}}
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			d.Rows = append(d.Rows, []string{header(f), fmt.Sprint(v.Field(i).Interface())})
		}
		return d, true

	case v.Kind() == reflect.Slice && v.Len() > 0 && reflect.Indirect(v.Index(0)).Kind() == reflect.Struct:
		elem := reflect.Indirect(v.Index(0)).Type()
		var d Data
		var fields []int
		for i := 0; i < elem.NumField(); i++ {
			if f := elem.Field(i); f.IsExported() {
				d.Headers = append(d.Headers, header(f))
				fields = append(fields, i)
			}
		}
		for i := 0; i < v.Len(); i++ {
			item := reflect.Indirect(v.Index(i))
			row := make([]string, len(fields))
			for j, idx := range fields {
				row[j] = fmt.Sprint(item.Field(idx).Interface())
			}
			d.Rows = append(d.Rows, row)
		}
		return d, true
	}
	return Data{}, false
}

var title = cases.Title(language.English)

// header names a column after the field's json tag, title-cased.
func header(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if tag == "" || tag == "-" {
		return f.Name
	}
	return title.String(strings.ReplaceAll(tag, "_", " "))
}
