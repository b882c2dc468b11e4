package importer

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/squaregoldfish/cdi-generator/internal/csr"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/cache"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/retrieval"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/tagtmpl"
)

const socatHeader = "Date/Time\tLatitude\tLongitude\tDepth water [m]\tTemp [°C]\tSal\tfCO2water_SST_wet [µatm]\tPPPP [hPa]\tFlag [#]"

const socatData = "/* DATA DESCRIPTION:\n" +
	"Citation:\tOlsen, A (2012): Surface underway measurements\n" +
	"*/\n" +
	socatHeader + "\n" +
	"2012-01-07T10:00\t61.5\t-20.25\t5\t7.25\t35.1\t365.2\t1013.2\t2\n" +
	"2012-01-07T10:01\t61.51\t-20.26\t5\t7.3\t\t366\t1013.25\t2\n"

const socatReformatted = "Date/Time;Latitude;Longitude;Depth water [m];Temp [°C];Sal;fCO2water_SST_wet [µatm];PPPP [hPa];Flag [#]\n" +
	"2012-01-07T10:00:00;+61.50000;-020.25000;+00005;+07.250;+35.100;+365.200;+1013.200;2\n" +
	"2012-01-07T10:01:00;+61.51000;-020.26000;+00005;+07.300;-99.999;+366.000;+1013.250;2\n"

const socatMetadata = `<?xml version="1.0" encoding="UTF-8"?>
<md:MetaData xmlns:md="http://www.pangaea.de/MetaData">
  <md:citation>
    <md:author><md:lastName>Olsen</md:lastName><md:firstName>Are</md:firstName></md:author>
    <md:title>Surface underway measurements of partial pressure of carbon dioxide during POLARSTERN cruise ANT-XXVIII/2</md:title>
    <md:URI>doi:10.1594/PANGAEA.849863</md:URI>
  </md:citation>
  <md:reference relationType="Other version"><md:URI>https://doi.org/10.1594/PANGAEA.811776</md:URI></md:reference>
  <md:extent>
    <md:geographic>
      <md:westBoundLongitude>-20.26</md:westBoundLongitude>
      <md:eastBoundLongitude>-20.25</md:eastBoundLongitude>
      <md:southBoundLatitude>61.5</md:southBoundLatitude>
      <md:northBoundLatitude>61.51</md:northBoundLatitude>
    </md:geographic>
    <md:temporal>
      <md:minDateTime>2012-01-07T10:00</md:minDateTime>
      <md:maxDateTime>2012-01-07T10:01</md:maxDateTime>
    </md:temporal>
    <md:elevation><md:min>4</md:min></md:elevation>
  </md:extent>
  <md:comment>Cruise QC flag: C (SOCAT v3)</md:comment>
  <md:event>
    <md:label>06AQ20120107-track</md:label>
    <md:basis><md:name>Polarstern</md:name></md:basis>
  </md:event>
</md:MetaData>`

type stubFetcher struct {
	data      map[string]string
	dataCalls int
}

func (f *stubFetcher) FetchData(_ context.Context, id string) ([]byte, error) {
	f.dataCalls++
	d, ok := f.data[id]
	if !ok {
		return nil, pangaea.ErrNotFound
	}
	return []byte(d), nil
}

func (f *stubFetcher) FetchMetadata(context.Context, string) ([]byte, error) {
	return []byte(socatMetadata), nil
}

func newTestSOCAT(t *testing.T, name string, data map[string]string, table *csr.Table) (*SOCAT, *stubFetcher) {
	t.Helper()
	templates := t.TempDir()
	for _, model := range []string{"Sal-Atm", "Sal-NoAtm", "NoSal-Atm", "NoSal-NoAtm"} {
		dir := filepath.Join(templates, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, model+"_ODV.xml"), []byte("<m>%%EXPOCODE%%</m>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fetcher := &stubFetcher{data: data}
	logger := log.New(io.Discard, "", 0)
	pipeline, err := retrieval.New(retrieval.Options{
		Fetcher: fetcher,
		Cache:   cache.NewMemoryStore(),
		Config:  retrieval.Config{NetworkRetries: 1},
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("retrieval.New: %v", err)
	}
	s, err := NewSOCAT(name, Deps{Pipeline: pipeline, CSR: table, TemplatesDir: templates, Logger: logger})
	if err != nil {
		t.Fatalf("NewSOCAT: %v", err)
	}
	return s, fetcher
}

func TestSOCATRetrieveReformats(t *testing.T) {
	s, _ := newTestSOCAT(t, SOCATv3, map[string]string{"849863": socatData}, nil)
	if err := s.Retrieve(context.Background(), "849863"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got := string(s.Data()); got != socatReformatted {
		t.Fatalf("Data =\n%s\nwant\n%s", got, socatReformatted)
	}

	models, err := s.Models()
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 1 || models[0].Name() != "Sal-Atm_ODV" {
		t.Fatalf("Models = %+v", models)
	}
}

func TestSOCATTags(t *testing.T) {
	table, err := csr.Load(strings.NewReader("h1;h2;h3;h4;h5;h6;h7\n" +
		`"74AB20120001";"ANT-XXVIII/2";"Olsen";"NO";"06AQ";"20120101";"20120601"` + "\n"))
	if err != nil {
		t.Fatalf("csr.Load: %v", err)
	}
	s, _ := newTestSOCAT(t, SOCATv3, map[string]string{"849863": socatData}, table)
	if err := s.Retrieve(context.Background(), "849863"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	start := time.Date(2012, 1, 7, 10, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2012, 1, 7, 10, 1, 0, 0, time.UTC).UnixMilli()
	tests := map[string]string{
		"EXPOCODE":      "06AQ20120107",
		"SHIP_CODE":     "06AQ",
		"FIRST_LINE":    "2",
		"SENSOR_DEPTH":  "4",
		"SHIP_NAME":     "Polarstern",
		"FIRST_AUTHOR":  "Olsen, Are",
		"START_DATE_MS": strconv.FormatInt(start, 10),
		"END_DATE_MS":   strconv.FormatInt(end, 10),
		"CSR_REFERENCE": "74AB20120001",
	}
	for tag, want := range tests {
		got, ok, err := s.ResolveTag(tag)
		if err != nil || !ok || got != want {
			t.Errorf("ResolveTag(%s) = %q, %v, %v; want %q", tag, got, ok, err, want)
		}
	}

	_, _, err = s.ResolveTag("BOGUS")
	var ute *UnrecognisedTagError
	if !errors.As(err, &ute) || ute.Tag != "BOGUS" {
		t.Fatalf("expected UnrecognisedTagError, got %v", err)
	}

	populated, err := tagtmpl.Populate("<m>%%EXPOCODE%%/%%FIRST_LINE%%</m>", s.ResolveTag)
	if err != nil || populated != "<m>06AQ20120107/2</m>" {
		t.Fatalf("Populate = %q, %v", populated, err)
	}
}

func TestSOCATFacts(t *testing.T) {
	s, _ := newTestSOCAT(t, SOCATv4, map[string]string{"849863": socatData}, nil)
	if err := s.Retrieve(context.Background(), "849863"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	checks := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"local cdi id", s.LocalCDIID, "06AQ20120107_1"},
		{"dataset id", s.DatasetID, "06AQ20120107"},
		{"cruise name", s.CruiseName, "06AQ20120107"},
		{"platform code", s.PlatformCode, "06AQ"},
		{"doi", s.DOI, "10.1594/PANGAEA.849863"},
		{"doi url", s.DOIURL, "https://doi.pangaea.de/10.1594/PANGAEA.849863"},
		{"documentation url", s.DocumentationURL, "https://doi.org/10.1594/PANGAEA.811776"},
		{"qc comment", s.QCComment, "Cruise QC flag: C"},
		{"csr reference", s.CSRReference, ""},
	}
	for _, c := range checks {
		got, err := c.fn()
		if err != nil || got != c.want {
			t.Errorf("%s = %q, %v; want %q", c.name, got, err, c.want)
		}
	}

	abstract, err := s.Abstract()
	if err != nil || !strings.HasSuffix(abstract, abstractSuffix[SOCATv4]) || !strings.HasPrefix(abstract, "Surface underway") {
		t.Fatalf("Abstract = %q, %v", abstract, err)
	}
	if s.DatasetName() != SOCATv4 || s.DataType() != "H71" {
		t.Fatalf("DatasetName/DataType = %s/%s", s.DatasetName(), s.DataType())
	}
	day, err := s.StartDate()
	if err != nil || !day.Equal(time.Date(2012, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartDate = %v, %v", day, err)
	}
	b, err := s.Bounds()
	if err != nil || b.North != 61.51 || b.West != -20.26 {
		t.Fatalf("Bounds = %+v, %v", b, err)
	}
}

func TestSOCATModelSelectionFromCachedData(t *testing.T) {
	noSal := "Date/Time\tLatitude\tLongitude\tDepth water [m]\tTemp [°C]\tfCO2water_SST_wet [µatm]\tFlag [#]\n" +
		"2012-01-07T10:00:00\t61.5\t-20.25\t5\t7.25\t365.2\t2\n"
	s, fetcher := newTestSOCAT(t, SOCATv3, map[string]string{"1": noSal}, nil)

	for i := 0; i < 2; i++ {
		if err := s.Retrieve(context.Background(), "1"); err != nil {
			t.Fatalf("Retrieve #%d: %v", i+1, err)
		}
		models, err := s.Models()
		if err != nil {
			t.Fatalf("Models: %v", err)
		}
		if models[0].Identifier != "NoSal-NoAtm" {
			t.Fatalf("run %d: identifier = %s", i+1, models[0].Identifier)
		}
	}
	if fetcher.dataCalls != 1 {
		t.Fatalf("dataCalls = %d, want 1", fetcher.dataCalls)
	}
	if !strings.HasPrefix(strings.Split(string(s.Data()), "\n")[1], "2012-01-07T10:00:00;") {
		t.Fatalf("seconds should not be appended twice: %q", s.Data())
	}
}

func TestSOCATFallbackAndPreferredFCO2(t *testing.T) {
	both := "Date/Time\tLatitude\tLongitude\tDepth water [m]\tTemp [°C]\tfCO2water_SST_wet [µatm]\tfCO2water_SST_wet [µatm] (Recomputed after SOCAT (Pfeil...)\tFlag [#]\n" +
		"2012-01-07T10:00\t61.5\t-20.25\t5\t7.25\t300\t365.2\t2\n"
	s, _ := newTestSOCAT(t, SOCATv3, map[string]string{"1": both}, nil)
	if err := s.Retrieve(context.Background(), "1"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	lines := strings.Split(string(s.Data()), "\n")
	if !strings.Contains(lines[0], "(Recomputed after SOCAT (Pfeil...)") || !strings.Contains(lines[1], "+365.200") {
		t.Fatalf("preferred fCO2 column not used:\n%s", s.Data())
	}
}

func TestSOCATMissingColumns(t *testing.T) {
	tests := map[string]string{
		"no_flag":   "Date/Time\tLatitude\tLongitude\tDepth water [m]\tTemp [°C]\tfCO2water_SST_wet [µatm]\n",
		"no_fco2":   "Date/Time\tLatitude\tLongitude\tDepth water [m]\tTemp [°C]\tFlag [#]\n",
		"no_depth":  "Date/Time\tLatitude\tLongitude\tTemp [°C]\tfCO2water_SST_wet [µatm]\tFlag [#]\n",
		"no_header": "just some text\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestSOCAT(t, SOCATv3, map[string]string{"1": data}, nil)
			err := s.Retrieve(context.Background(), "1")
			var ie *Error
			if !errors.As(err, &ie) {
				t.Fatalf("expected importer Error, got %v", err)
			}
		})
	}
}

func TestSOCATInvalidAndMissingIDs(t *testing.T) {
	s, fetcher := newTestSOCAT(t, SOCATv3, map[string]string{}, nil)

	err := s.Retrieve(context.Background(), "12a")
	var iid *InvalidIDError
	if !errors.As(err, &iid) || iid.Format != "<number>" {
		t.Fatalf("expected InvalidIDError, got %v", err)
	}
	if fetcher.dataCalls != 0 {
		t.Fatalf("invalid ID reached the network")
	}

	if err := s.Retrieve(context.Background(), "404"); !errors.Is(err, retrieval.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
	if _, err := s.LocalCDIID(); err == nil {
		t.Fatalf("facts must be unavailable after a failed retrieval")
	}
}

func TestShipCode(t *testing.T) {
	tests := map[string]string{
		"06AQ20120107-track": "06AQ",
		"33RO20071215":       "33RO",
		"49NZ20051031-1":     "49NZ",
		"NOCODE":             "NOCODE",
	}
	for label, want := range tests {
		s := &SOCAT{name: SOCATv3, md: &pangaea.Metadata{Events: []pangaea.Event{{Label: label}}}}
		got, err := s.shipCode()
		if err != nil || got != want {
			t.Errorf("shipCode(%s) = %q, %v; want %q", label, got, err, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if got := strings.Join(r.Names(), ","); got != "SOCATv3,SOCATv4" {
		t.Fatalf("Names = %s", got)
	}
	if f, ok := r.IDFormat(SOCATv4); !ok || f != "<number>" {
		t.Fatalf("IDFormat = %q, %v", f, ok)
	}
	if _, err := r.New("GLODAP", Deps{}); err == nil {
		t.Fatalf("expected unknown importer error")
	}
	if _, err := r.New(SOCATv3, Deps{}); err == nil {
		t.Fatalf("expected missing pipeline error")
	}
	if err := r.Register(SOCATv3, "x", func(Deps) (DatasetSource, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestColumnPaddingSpec(t *testing.T) {
	s, _ := newTestSOCAT(t, SOCATv3, nil, nil)
	spec, ok := s.ColumnPaddingSpec("Longitude")
	if !ok || spec.String() != "10.5" {
		t.Fatalf("Longitude spec = %v, %v", spec, ok)
	}
	if spec, ok := s.ColumnPaddingSpec("Flag [#]"); !ok || spec != nil {
		t.Fatalf("Flag should be known without padding, got %v, %v", spec, ok)
	}
	if _, ok := s.ColumnPaddingSpec("Chlorophyll"); ok {
		t.Fatalf("unknown column reported as known")
	}
}
