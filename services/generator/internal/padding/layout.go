package padding

import (
	"fmt"
	"strings"
)

// Column selects one source field for output.
type Column struct {
	Name    string
	Index   int
	Numeric bool
	// Spec is applied when set. Without it the value goes through Format, or
	// is copied verbatim.
	Spec   *Spec
	Format func(string) string
}

// Layout is the ordered set of emitted columns and the separator joining them.
type Layout struct {
	Columns   []Column
	Separator string
}

// Names returns the emitted column names in order.
func (l Layout) Names() []string {
	names := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		names[i] = c.Name
	}
	return names
}

// FormatRow builds one output line from the split source fields.
func (l Layout) FormatRow(fields []string) (string, error) {
	var b strings.Builder
	for i, col := range l.Columns {
		if col.Index < 0 || col.Index >= len(fields) {
			return "", fmt.Errorf("column %q: index %d outside row of %d fields", col.Name, col.Index, len(fields))
		}
		value := strings.TrimSpace(fields[col.Index])
		out, err := col.render(value)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", col.Name, err)
		}
		if i > 0 {
			b.WriteString(l.Separator)
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

func (c Column) render(value string) (string, error) {
	switch {
	case c.Spec != nil:
		return c.Spec.Pad(value, c.Numeric)
	case c.Format != nil:
		return c.Format(value), nil
	default:
		return value, nil
	}
}

// Reformat writes the column names as a header line followed by one output
// line per row. rows holds source lines already stripped of their header;
// sourceSep splits them into fields. Blank rows are dropped. Errors carry the
// 1-based position of the row within rows.
func (l Layout) Reformat(rows []string, sourceSep string) (string, error) {
	var b strings.Builder
	b.WriteString(strings.Join(l.Names(), l.Separator))
	b.WriteByte('\n')
	for i, row := range rows {
		row = strings.TrimRight(row, "\r")
		if strings.TrimSpace(row) == "" {
			continue
		}
		line, err := l.FormatRow(strings.Split(row, sourceSep))
		if err != nil {
			return "", fmt.Errorf("row %d: %w", i+1, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
