// Package csr loads the Cruise Summary Report reference file and answers
// "which CSR covers this platform on this date" queries.
package csr

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Layout of the semicolon separated reference file.
const (
	ColumnCount = 7

	colReference = 0
	colPlatform  = 4
	colStart     = 5
	colEnd       = 6
)

var dateLayouts = []string{"20060102", "2006-01-02"}

// LoadError identifies the offending line of the reference file.
type LoadError struct {
	Line int
	Msg  string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("csr file line %d: %s", e.Line, e.Msg)
}

// Entry is a half-open [Start, End) period during which Code applies.
type Entry struct {
	Start time.Time
	End   time.Time
	Code  string
	line  int
}

// Contains reports whether d falls in [Start, End).
func (e Entry) Contains(d time.Time) bool {
	return !d.Before(e.Start) && d.Before(e.End)
}

// Table maps platform codes to their entries sorted by start date. It is not
// modified after Load returns.
type Table struct {
	entries map[string][]Entry
}

// Load parses the reference file. The first line is a header.
func Load(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	entries := make(map[string][]Entry)
	header := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &LoadError{Line: perr.Line, Msg: perr.Err.Error()}
			}
			return nil, fmt.Errorf("read csr data: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if header {
			header = false
			continue
		}
		if len(record) != ColumnCount {
			return nil, &LoadError{Line: line, Msg: fmt.Sprintf("incorrect number of columns: got %d, want %d", len(record), ColumnCount)}
		}

		entry, platform, err := parseRecord(record)
		if err != nil {
			return nil, &LoadError{Line: line, Msg: err.Error()}
		}
		entry.line = line
		entries[platform] = append(entries[platform], entry)
	}

	for platform, list := range entries {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
		for i := 1; i < len(list); i++ {
			if list[i].Start.Before(list[i-1].End) {
				return nil, &LoadError{
					Line: list[i].line,
					Msg: fmt.Sprintf("platform %s: CSR %s overlaps CSR %s (line %d)",
						platform, list[i].Code, list[i-1].Code, list[i-1].line),
				}
			}
		}
	}
	return &Table{entries: entries}, nil
}

func parseRecord(record []string) (Entry, string, error) {
	code := stripQuotes(record[colReference])
	platform := stripQuotes(record[colPlatform])
	if platform == "" {
		return Entry{}, "", errors.New("empty platform code")
	}
	start, err := parseDate(stripQuotes(record[colStart]))
	if err != nil {
		return Entry{}, "", fmt.Errorf("start date: %w", err)
	}
	end, err := parseDate(stripQuotes(record[colEnd]))
	if err != nil {
		return Entry{}, "", fmt.Errorf("end date: %w", err)
	}
	if !start.Before(end) {
		return Entry{}, "", fmt.Errorf("start date %s is not before end date %s", start.Format("20060102"), end.Format("20060102"))
	}
	return Entry{Start: start, End: end, Code: code}, platform, nil
}

func stripQuotes(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

// Query returns the CSR reference covering date for platform.
func (t *Table) Query(platform string, date time.Time) (string, bool) {
	if t == nil {
		return "", false
	}
	list := t.entries[platform]
	if len(list) == 0 {
		return "", false
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	// Entries never overlap, so only the predecessor of the first entry
	// starting after day can contain it.
	i := sort.Search(len(list), func(i int) bool { return list[i].Start.After(day) })
	if i == 0 {
		return "", false
	}
	if e := list[i-1]; e.Contains(day) {
		return e.Code, true
	}
	return "", false
}

// Platforms returns the number of distinct platform codes.
func (t *Table) Platforms() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Fetch downloads and loads the reference file.
func Fetch(ctx context.Context, client *http.Client, url string) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request csr file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request csr file: unexpected status %s", resp.Status)
	}

	table, err := Load(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("load csr file: %w", err)
	}
	return table, nil
}
