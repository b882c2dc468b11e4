package csr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const header = `"CSR";"Cruise";"Chief";"Country";"Platform";"Start";"End"` + "\n"

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustLoad(t *testing.T, body string) *Table {
	t.Helper()
	table, err := Load(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return table
}

func TestLoadAndQueryExample(t *testing.T) {
	table := mustLoad(t, header+`"X";"C1";"Smith";"NO";"SHIP1";"20200101";"20200601"`+"\n")
	got, ok := table.Query("SHIP1", day(2020, 3, 15))
	if !ok || got != "X" {
		t.Fatalf("Query = %q, %v", got, ok)
	}
	if table.Platforms() != 1 {
		t.Fatalf("Platforms = %d", table.Platforms())
	}
}

func TestQueryHalfOpen(t *testing.T) {
	table := mustLoad(t, header+
		`"X";"C1";"A";"NO";"SHIP1";"20200101";"20200601"`+"\n"+
		`"Y";"C2";"A";"NO";"SHIP1";"20200601";"20201001"`+"\n"+
		`"Z";"C3";"B";"NO";"SHIP2";"2020-01-01";"2020-06-01"`+"\n")

	tests := []struct {
		name     string
		platform string
		date     time.Time
		want     string
		wantOK   bool
	}{
		{name: "start_inclusive", platform: "SHIP1", date: day(2020, 1, 1), want: "X", wantOK: true},
		{name: "end_exclusive_next_wins", platform: "SHIP1", date: day(2020, 6, 1), want: "Y", wantOK: true},
		{name: "before_first", platform: "SHIP1", date: day(2019, 12, 31)},
		{name: "after_last", platform: "SHIP1", date: day(2020, 10, 1)},
		{name: "time_of_day_ignored", platform: "SHIP1", date: time.Date(2020, 5, 31, 23, 59, 0, 0, time.UTC), want: "X", wantOK: true},
		{name: "iso_dates", platform: "SHIP2", date: day(2020, 2, 2), want: "Z", wantOK: true},
		{name: "unknown_platform", platform: "SHIP9", date: day(2020, 2, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Query(tt.platform, tt.date)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("Query(%s, %s) = %q, %v; want %q, %v", tt.platform, tt.date.Format("20060102"), got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestQueryGapBetweenEntries(t *testing.T) {
	table := mustLoad(t, header+
		`"X";"C1";"A";"NO";"SHIP1";"20200101";"20200201"`+"\n"+
		`"Y";"C2";"A";"NO";"SHIP1";"20200301";"20200401"`+"\n")
	if _, ok := table.Query("SHIP1", day(2020, 2, 15)); ok {
		t.Fatalf("expected no match in gap")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		line int
	}{
		{name: "column_count", body: header + `"X";"C1";"SHIP1";"20200101"` + "\n", line: 2},
		{name: "bad_date", body: header + `"X";"C1";"A";"NO";"SHIP1";"2020xx01";"20200601"` + "\n", line: 2},
		{name: "reversed", body: header + `"X";"C1";"A";"NO";"SHIP1";"20200601";"20200101"` + "\n", line: 2},
		{name: "empty_interval", body: header + `"X";"C1";"A";"NO";"SHIP1";"20200601";"20200601"` + "\n", line: 2},
		{
			name: "overlap",
			body: header +
				`"X";"C1";"A";"NO";"SHIP1";"20200101";"20200601"` + "\n" +
				`"Y";"C2";"A";"NO";"SHIP1";"20200501";"20200701"` + "\n",
			line: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.body))
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected LoadError, got %v", err)
			}
			if le.Line != tt.line {
				t.Fatalf("LoadError.Line = %d, want %d (%v)", le.Line, tt.line, err)
			}
		})
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	table := mustLoad(t, header)
	if _, ok := table.Query("SHIP1", day(2020, 1, 1)); ok {
		t.Fatalf("expected empty table")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/csr.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(header + `"X";"C1";"A";"NO";"SHIP1";"20200101";"20200601"` + "\n"))
	}))
	defer srv.Close()

	table, err := Fetch(context.Background(), srv.Client(), srv.URL+"/csr.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if code, ok := table.Query("SHIP1", day(2020, 2, 1)); !ok || code != "X" {
		t.Fatalf("Query = %q, %v", code, ok)
	}
	if _, err := Fetch(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected status error")
	}
}
