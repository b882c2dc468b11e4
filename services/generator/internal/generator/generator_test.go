package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/metrics"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/models"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/nemo"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/padding"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/retrieval"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/tagtmpl"
)

type stubSource struct {
	template string
	notFound map[string]bool
	noValue  map[string]bool
	current  string
}

func (s *stubSource) Name() string              { return "STUB" }
func (s *stubSource) ValidateID(id string) bool { return id != "" }
func (s *stubSource) IDFormat() string          { return "<id>" }
func (s *stubSource) IDDescriptor() string      { return "stub ID" }
func (s *stubSource) IDsDescriptor() string     { return "stub IDs" }
func (s *stubSource) DataType() string          { return "H71" }
func (s *stubSource) DatasetName() string       { return "STUB" }
func (s *stubSource) Data() []byte              { return []byte("Date/Time;Latitude\n" + s.current + ";+61.50000\n") }

func (s *stubSource) Retrieve(_ context.Context, id string) error {
	s.current = ""
	if s.notFound[id] {
		return fmt.Errorf("%s: %w", id, retrieval.ErrDatasetNotFound)
	}
	s.current = id
	return nil
}

func (s *stubSource) ResolveTag(tag string) (string, bool, error) {
	if tag == "EXPOCODE" && !s.noValue[s.current] {
		return "EXPO" + s.current, true, nil
	}
	return "", false, nil
}

func (s *stubSource) ColumnPaddingSpec(string) (*padding.Spec, bool) { return nil, false }

func (s *stubSource) Models() ([]nemo.Model, error) {
	return []nemo.Model{{Source: "STUB", Identifier: "Sal-Atm", Format: "ODV", TemplatePath: s.template}}, nil
}

func (s *stubSource) LocalCDIID() (string, error)      { return s.current + "_1", nil }
func (s *stubSource) DatasetID() (string, error)       { return "EXPO" + s.current, nil }
func (s *stubSource) PlatformCode() (string, error)    { return "06AQ", nil }
func (s *stubSource) DOI() (string, error)             { return "10.1594/PANGAEA." + s.current, nil }
func (s *stubSource) DOIURL() (string, error)          { return "https://doi.pangaea.de/10.1594/PANGAEA." + s.current, nil }
func (s *stubSource) Abstract() (string, error)        { return "abstract", nil }
func (s *stubSource) CruiseName() (string, error)      { return "EXPO" + s.current, nil }
func (s *stubSource) DocumentationURL() (string, error) { return "", nil }
func (s *stubSource) QCComment() (string, error)       { return "", nil }
func (s *stubSource) CSRReference() (string, error)    { return "", nil }
func (s *stubSource) Bounds() (pangaea.Bounds, error)  { return pangaea.Bounds{North: 61.5}, nil }
func (s *stubSource) StartDate() (time.Time, error) {
	return time.Date(2012, 1, 7, 0, 0, 0, 0, time.UTC), nil
}
func (s *stubSource) StartDateTime() (time.Time, error) {
	return time.Date(2012, 1, 7, 10, 0, 0, 0, time.UTC), nil
}
func (s *stubSource) EndDateTime() (time.Time, error) {
	return time.Date(2012, 2, 1, 0, 0, 0, 0, time.UTC), nil
}

type memStore struct {
	records    []models.SummaryRecord
	cleared    int
	noPlatform bool
}

func (m *memStore) PlatformID(_ context.Context, code string, _ time.Time, datasetID string) (int64, error) {
	if m.noPlatform {
		return 0, fmt.Errorf("no platform for %s/%s", code, datasetID)
	}
	return 7, nil
}

func (m *memStore) InsertSummaries(_ context.Context, recs []models.SummaryRecord) error {
	m.records = append(m.records, recs...)
	return nil
}

func (m *memStore) ClearSummaries(context.Context) error {
	m.cleared++
	m.records = nil
	return nil
}

type stubConverter struct {
	calls []nemo.Invocation
	fail  map[string]error
}

func (c *stubConverter) Run(_ context.Context, inv nemo.Invocation) (string, error) {
	c.calls = append(c.calls, inv)
	for id, err := range c.fail {
		if strings.Contains(filepath.Base(inv.DataPath), id+"_") {
			return "", err
		}
	}
	if err := os.WriteFile(inv.OutputPath, make([]byte, 2048), 0o644); err != nil {
		return "", err
	}
	return "ok", nil
}

type fixture struct {
	gen       *Generator
	src       *stubSource
	store     *memStore
	converter *stubConverter
	metrics   *metrics.Recorder
	tempDir   string
}

func newFixture(t *testing.T, dryRun bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	template := filepath.Join(dir, "Sal-Atm_ODV.xml")
	if err := os.WriteFile(template, []byte("<cruise>%%EXPOCODE%%</cruise>"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		src:       &stubSource{template: template, notFound: map[string]bool{}, noValue: map[string]bool{}},
		store:     &memStore{},
		converter: &stubConverter{fail: map[string]error{}},
		metrics:   metrics.New(),
		tempDir:   filepath.Join(dir, "temp"),
	}
	gen, err := New(Options{
		Source:    f.src,
		Store:     f.store,
		Converter: f.converter,
		TempDir:   f.tempDir,
		OutputDir: filepath.Join(dir, "output"),
		DryRun:    dryRun,
		Logger:    log.New(io.Discard, "", 0),
		Metrics:   f.metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.gen = gen
	return f
}

func datasetCount(t *testing.T, r *metrics.Recorder, outcome string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "cdigen_datasets_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunProcessesEveryID(t *testing.T) {
	f := newFixture(t, false)
	f.src.notFound["404"] = true

	var progress []string
	f.gen.progress = func(msg string) { progress = append(progress, msg) }

	report, err := f.gen.Run(context.Background(), []string{"1", "404", "2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(report.Succeeded, ",") != "1,2" || strings.Join(report.Failed, ",") != "404" {
		t.Fatalf("report = %+v", report)
	}
	if !errors.Is(report.Errors["404"], retrieval.ErrDatasetNotFound) {
		t.Fatalf("Errors[404] = %v", report.Errors["404"])
	}
	if len(f.store.records) != 2 || f.store.records[1].LocalCDIID != "2_1" || f.store.records[1].PlatformID != 7 {
		t.Fatalf("records = %+v", f.store.records)
	}
	if f.store.records[0].DistributionDataSize != "0.00" {
		t.Fatalf("DistributionDataSize = %q", f.store.records[0].DistributionDataSize)
	}

	populated, err := os.ReadFile(filepath.Join(f.tempDir, "1_Sal-Atm_ODV_nemoModel.xml"))
	if err != nil || string(populated) != "<cruise>EXPO1</cruise>" {
		t.Fatalf("populated template = %q, %v", populated, err)
	}
	inv := f.converter.calls[0]
	if inv.DataPath != filepath.Join(f.tempDir, "1_data.txt") || inv.Format != "ODV" || !filepath.IsAbs(inv.OutputPath) {
		t.Fatalf("invocation = %+v", inv)
	}
	if !strings.HasSuffix(inv.OutputPath, "1_1_odv.txt") {
		t.Fatalf("OutputPath = %s", inv.OutputPath)
	}

	if got := datasetCount(t, f.metrics, metrics.OutcomeSucceeded); got != 2 {
		t.Fatalf("succeeded metric = %v", got)
	}
	if got := datasetCount(t, f.metrics, metrics.OutcomeNotFound); got != 1 {
		t.Fatalf("not_found metric = %v", got)
	}
	if last := progress[len(progress)-1]; last != "Processing complete. 2 succeeded, 1 failed." {
		t.Fatalf("last progress = %q", last)
	}
}

func TestRunConversionErrorFailsOnlyThatID(t *testing.T) {
	f := newFixture(t, false)
	f.converter.fail["1"] = &nemo.ConversionError{Detail: "ERROR bad column"}

	report, err := f.gen.Run(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(report.Failed, ",") != "1" || strings.Join(report.Succeeded, ",") != "2" {
		t.Fatalf("report = %+v", report)
	}
	if len(f.store.records) != 1 {
		t.Fatalf("records = %d", len(f.store.records))
	}
}

func TestRunProcessErrorAbortsBatch(t *testing.T) {
	f := newFixture(t, false)
	f.converter.fail["1"] = &nemo.ProcessError{ExitCode: 2, Err: errors.New("exit status 2")}

	report, err := f.gen.Run(context.Background(), []string{"1", "2"})
	var perr *nemo.ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if len(f.converter.calls) != 1 || len(report.Succeeded) != 0 || strings.Join(report.Failed, ",") != "1" {
		t.Fatalf("batch continued: calls=%d report=%+v", len(f.converter.calls), report)
	}
}

func TestRunMissingTagValue(t *testing.T) {
	f := newFixture(t, false)
	f.src.noValue["1"] = true

	report, err := f.gen.Run(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var mv *tagtmpl.MissingValueError
	if !errors.As(report.Errors["1"], &mv) || mv.Tag != "EXPOCODE" {
		t.Fatalf("Errors[1] = %v", report.Errors["1"])
	}
	if len(f.converter.calls) != 1 {
		t.Fatalf("NEMO ran for failed template: %d calls", len(f.converter.calls))
	}
}

func TestRunMissingPlatform(t *testing.T) {
	f := newFixture(t, false)
	f.store.noPlatform = true

	report, err := f.gen.Run(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 || !strings.Contains(report.Errors["1"].Error(), "platform ID") {
		t.Fatalf("report = %+v", report)
	}
	if len(f.store.records) != 0 {
		t.Fatalf("records stored for failed dataset")
	}
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, true)

	report, err := f.gen.Run(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Succeeded) != 1 || len(f.converter.calls) != 0 || len(f.store.records) != 0 {
		t.Fatalf("dry run touched NEMO or the store: %+v", report)
	}
	if err := f.gen.ClearSummaries(context.Background()); err != nil || f.store.cleared != 0 {
		t.Fatalf("dry run cleared summaries: %v", err)
	}
}

func TestClearSummaries(t *testing.T) {
	f := newFixture(t, false)
	if err := f.gen.ClearSummaries(context.Background()); err != nil {
		t.Fatalf("ClearSummaries: %v", err)
	}
	if f.store.cleared != 1 {
		t.Fatalf("cleared = %d", f.store.cleared)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, false)
	f.src.notFound["1"] = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.gen.Run(ctx, []string{"1", "2"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Failed) != 1 || len(report.Succeeded) != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected missing source error")
	}
	if _, err := New(Options{Source: &stubSource{}}); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := New(Options{Source: &stubSource{}, DryRun: true}); err != nil {
		t.Fatalf("dry run without store: %v", err)
	}
}
