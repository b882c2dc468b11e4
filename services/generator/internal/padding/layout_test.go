package padding

import (
	"errors"
	"strings"
	"testing"
)

func testLayout() Layout {
	return Layout{
		Separator: ";",
		Columns: []Column{
			{Name: "Date/Time", Index: 0, Format: func(v string) string { return v + ":00" }},
			{Name: "Latitude", Index: 1, Numeric: true, Spec: MustSpec(9, 5)},
			{Name: "Temp", Index: 3, Numeric: true, Spec: MustSpec(7, 3)},
			{Name: "Flag", Index: 4},
		},
	}
}

func TestLayoutFormatRow(t *testing.T) {
	got, err := testLayout().FormatRow([]string{"2012-01-07T10:00", "61.5", "ignored", "", "2"})
	if err != nil {
		t.Fatalf("FormatRow: %v", err)
	}
	want := "2012-01-07T10:00:00;+61.50000;-99.999;2"
	if got != want {
		t.Fatalf("FormatRow = %q, want %q", got, want)
	}
}

func TestLayoutFormatRowErrors(t *testing.T) {
	l := testLayout()
	if _, err := l.FormatRow([]string{"a", "b"}); err == nil {
		t.Fatalf("expected short row error")
	}
	_, err := l.FormatRow([]string{"t", "north", "", "1", "2"})
	var pe *PaddingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PaddingError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Latitude") {
		t.Fatalf("error should name the column: %v", err)
	}
}

func TestLayoutReformat(t *testing.T) {
	rows := []string{
		"2012-01-07T10:00\t61.5\tx\t7.25\t2\r",
		"",
		"2012-01-07T10:01\t-1\tx\t\t3",
	}
	got, err := testLayout().Reformat(rows, "\t")
	if err != nil {
		t.Fatalf("Reformat: %v", err)
	}
	want := "Date/Time;Latitude;Temp;Flag\n" +
		"2012-01-07T10:00:00;+61.50000;+07.250;2\n" +
		"2012-01-07T10:01:00;-01.00000;-99.999;3\n"
	if got != want {
		t.Fatalf("Reformat =\n%s\nwant\n%s", got, want)
	}
}

func TestLayoutReformatReportsRow(t *testing.T) {
	_, err := testLayout().Reformat([]string{"t\t1\tx\t1\t2", "t\tbad\tx\t1\t2"}, "\t")
	if err == nil || !strings.HasPrefix(err.Error(), "row 2:") {
		t.Fatalf("expected row 2 error, got %v", err)
	}
}
