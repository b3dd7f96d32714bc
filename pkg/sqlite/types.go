package sqlite

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is one table of a schema summary.
type Table struct {
	Name    string   `json:"table_name"`
	Columns []string `json:"column_names"`
}

// Schema is the ordered table/column listing of a database.
type Schema struct {
	Tables []Table `json:"tables"`
}

// Empty reports whether the schema has no tables.
func (s Schema) Empty() bool {
	return len(s.Tables) == 0
}

// String renders the schema as newline-joined "Table: X\nColumns: a, b" blocks.
func (s Schema) String() string {
	blocks := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		blocks = append(blocks, fmt.Sprintf("Table: %s\nColumns: %s", table.Name, strings.Join(table.Columns, ", ")))
	}
	return strings.Join(blocks, "\n")
}

// Result is the full result set of a query.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// String renders the rows as a list of tuples, e.g. [(1, 'a'), (2, None)].
func (r *Result) String() string {
	if r == nil {
		return "[]"
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, value := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatValue(value))
		}
		if len(row) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

// FormatValue renders a single scanned value in tuple notation.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return formatFloat(val)
	case string:
		return quoteString(val)
	case []byte:
		return quoteBytes(val)
	case time.Time:
		return quoteString(FormatTime(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FormatTime renders values go-sqlite3 parsed from DATE, DATETIME and
// TIMESTAMP columns. Date-only values stay date-only; fractional seconds and
// non-UTC offsets are kept.
func FormatTime(t time.Time) string {
	_, offset := t.Zone()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && offset == 0 {
		return t.Format(time.DateOnly)
	}

	layout := "2006-01-02 15:04:05.999999999"
	if t.Location() != time.UTC || offset != 0 {
		layout += "-07:00"
	}
	return t.Format(layout)
}

// quoteBytes renders a blob as a bytes literal, escaping everything outside
// printable ASCII as \xNN.
func quoteBytes(p []byte) string {
	quote := byte('\'')
	if bytes.IndexByte(p, '\'') >= 0 && bytes.IndexByte(p, '"') < 0 {
		quote = '"'
	}

	var b strings.Builder
	b.WriteString("b")
	b.WriteByte(quote)
	for _, c := range p {
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == quote:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, `\x%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// quoteString prefers single quotes and switches to double quotes when that
// avoids escaping.
func quoteString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}
