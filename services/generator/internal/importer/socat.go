package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/nemo"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/padding"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
)

// Source names.
const (
	SOCATv3 = "SOCATv3"
	SOCATv4 = "SOCATv4"
)

const (
	socatIDFormat = "<number>"

	colDateTime      = "Date/Time"
	colLatitude      = "Latitude"
	colLongitude     = "Longitude"
	colSST           = "Temp [°C]"
	colSalinity      = "Sal"
	colPreferredFCO2 = "fCO2water_SST_wet [µatm] (Recomputed after SOCAT (Pfeil...)"
	colFallbackFCO2  = "fCO2water_SST_wet [µatm]"
	colPressure      = "PPPP [hPa]"
	colFlag          = "Flag [#]"
	colWaterDepth    = "Depth water [m]"

	sourceSeparator = "\t"
	outputSeparator = ";"

	defaultSensorDepth = "5"
	qcCommentPrefix    = "Cruise QC flag"
	qcCommentLength    = 17
	stationNumber      = 1
	socatDataType      = "H71"
	doiURLPrefix       = "https://doi.pangaea.de/"
	otherVersion       = "Other version"
)

var (
	socatIDPattern   = regexp.MustCompile(`^[0-9]+$`)
	trackSuffix      = regexp.MustCompile(`^(.*)-track$`)
	shipCodeWithLeg  = regexp.MustCompile(`^(.*)[0-9]{4}[0-1][0-9][0-3][0-9]-.*$`)
	shipCodePlain    = regexp.MustCompile(`^(.*)[0-9]{4}[0-1][0-9][0-3][0-9]$`)
	hasSecondsFormat = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}$`)

	socatOutputFormats = []string{"ODV"}

	abstractSuffix = map[string]string{
		SOCATv3: " Part of SOCAT Version 3 - A multi-decade record of high-quality surface ocean fCO2 data, doi:10.5194/essd-8-383-2016 (http://www.socat.info)",
		SOCATv4: " Part of SOCAT Version 4 - A multi-decade record of high-quality surface ocean fCO2 data (http://www.socat.info)",
	}
)

// socatPadding lists every column a SOCAT table may contribute. Columns mapped
// to nil are known but copied without padding.
func socatPadding() map[string]*padding.Spec {
	tempAndSal := padding.MustSpec(7, 3)
	fco2 := padding.MustSpec(8, 3)
	return map[string]*padding.Spec{
		colDateTime:      nil,
		colFlag:          nil,
		colLatitude:      padding.MustSpec(9, 5),
		colLongitude:     padding.MustSpec(10, 5),
		colSST:           tempAndSal,
		colSalinity:      tempAndSal,
		colPressure:      padding.MustSpec(9, 3),
		colPreferredFCO2: fco2,
		colFallbackFCO2:  fco2,
		colWaterDepth:    padding.MustSpec(6, 0),
	}
}

// SOCAT reads SOCAT synthesis cruises published in PANGAEA.
type SOCAT struct {
	name    string
	deps    Deps
	logger  *log.Logger
	padding map[string]*padding.Spec

	id        string
	md        *pangaea.Metadata
	data      []byte
	firstLine int
	hasSal    bool
	hasAtm    bool
}

// NewSOCAT builds the SOCATv3 or SOCATv4 source.
func NewSOCAT(name string, deps Deps) (*SOCAT, error) {
	if _, ok := abstractSuffix[name]; !ok {
		return nil, fmt.Errorf("unknown SOCAT version %q", name)
	}
	if deps.Pipeline == nil {
		return nil, errors.New("retrieval pipeline required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &SOCAT{name: name, deps: deps, logger: logger, padding: socatPadding()}, nil
}

func (s *SOCAT) Name() string          { return s.name }
func (s *SOCAT) IDFormat() string      { return socatIDFormat }
func (s *SOCAT) IDDescriptor() string  { return "PANGAEA ID" }
func (s *SOCAT) IDsDescriptor() string { return "PANGAEA IDs" }
func (s *SOCAT) DataType() string      { return socatDataType }
func (s *SOCAT) DatasetName() string   { return s.name }
func (s *SOCAT) Data() []byte          { return s.data }

func (s *SOCAT) ValidateID(id string) bool { return socatIDPattern.MatchString(id) }

func (s *SOCAT) ColumnPaddingSpec(column string) (*padding.Spec, bool) {
	spec, ok := s.padding[column]
	return spec, ok
}

func (s *SOCAT) errorf(err error, format string, args ...any) *Error {
	return &Error{Source: s.name, ID: s.id, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Retrieve fetches and parses id, replacing the previous dataset.
func (s *SOCAT) Retrieve(ctx context.Context, id string) error {
	s.id, s.md, s.data = id, nil, nil
	s.firstLine, s.hasSal, s.hasAtm = 0, false, false
	if !s.ValidateID(id) {
		return &InvalidIDError{Source: s.name, ID: id, Format: socatIDFormat}
	}
	payload, err := s.deps.Pipeline.Retrieve(ctx, id, socatProcessor{s})
	if err != nil {
		s.md, s.data = nil, nil
		return err
	}
	s.data = payload.Data
	return nil
}

// socatProcessor adapts the source to retrieval.Processor.
type socatProcessor struct{ s *SOCAT }

func (p socatProcessor) Reformat(raw []byte) ([]byte, error) { return p.s.reformat(raw) }

func (p socatProcessor) ParseMetadata(b []byte) error {
	md, err := pangaea.ParseMetadata(b)
	if err != nil {
		return p.s.errorf(err, "unreadable metadata")
	}
	p.s.md = md
	return nil
}

func (p socatProcessor) ParseData(b []byte) error { return p.s.parseData(b) }

// reformat keeps the columns NEMO needs, padded to fixed widths and joined
// with semicolons. Everything above the column header is dropped.
func (s *SOCAT) reformat(raw []byte) ([]byte, error) {
	lines := strings.Split(string(raw), "\n")
	header := -1
	for i, line := range lines {
		if strings.HasPrefix(line, colDateTime) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, s.errorf(nil, "cannot find column header starting with %q", colDateTime)
	}

	names := strings.Split(strings.TrimRight(lines[header], "\r"), sourceSeparator)
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	layout, err := s.layout(names)
	if err != nil {
		return nil, err
	}
	out, err := layout.Reformat(lines[header+1:], sourceSeparator)
	if err != nil {
		return nil, s.errorf(err, "reformat data")
	}
	return []byte(out), nil
}

func (s *SOCAT) layout(names []string) (padding.Layout, error) {
	indexOf := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		return -1
	}

	if len(names) < 3 {
		return padding.Layout{}, s.errorf(nil, "header has %d columns, need at least 3", len(names))
	}
	// Date/Time, Latitude and Longitude are always the first three columns.
	indices := []int{0, 1, 2}
	required := func(name string) error {
		i := indexOf(name)
		if i < 0 {
			return s.errorf(nil, "cannot find %s column", name)
		}
		indices = append(indices, i)
		return nil
	}
	optional := func(name string) bool {
		i := indexOf(name)
		if i < 0 {
			return false
		}
		indices = append(indices, i)
		return true
	}

	if err := required(colWaterDepth); err != nil {
		return padding.Layout{}, err
	}
	if err := required(colSST); err != nil {
		return padding.Layout{}, err
	}
	optional(colSalinity)
	if !optional(colPreferredFCO2) {
		if err := required(colFallbackFCO2); err != nil {
			return padding.Layout{}, s.errorf(nil, "cannot find fCO2 column")
		}
	}
	optional(colPressure)
	if err := required(colFlag); err != nil {
		return padding.Layout{}, err
	}

	layout := padding.Layout{Separator: outputSeparator}
	for _, i := range indices {
		name := names[i]
		spec, known := s.ColumnPaddingSpec(name)
		if !known {
			return padding.Layout{}, s.errorf(nil, "unrecognised column name %q", name)
		}
		col := padding.Column{Name: name, Index: i, Numeric: spec != nil, Spec: spec}
		if name == colDateTime {
			col.Format = formatDateTime
		}
		layout.Columns = append(layout.Columns, col)
	}
	return layout, nil
}

// formatDateTime appends seconds to "YYYY-MM-DDThh:mm" values.
func formatDateTime(v string) string {
	if v == "" || hasSecondsFormat.MatchString(v) {
		return v
	}
	return v + ":00"
}

// parseData inspects the reformatted table; it works the same on freshly
// reformatted and cached data.
func (s *SOCAT) parseData(b []byte) error {
	lines := strings.Split(string(b), "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, colDateTime) {
			continue
		}
		s.firstLine = i + 2
		s.hasSal, s.hasAtm = false, false
		for _, name := range strings.Split(strings.TrimRight(line, "\r"), outputSeparator) {
			switch strings.TrimSpace(name) {
			case colSalinity:
				s.hasSal = true
			case colPressure:
				s.hasAtm = true
			}
		}
		return nil
	}
	return s.errorf(nil, "cannot find column header in reformatted data")
}

// Models selects Sal-/NoSal- and Atm/NoAtm templates from the available columns.
func (s *SOCAT) Models() ([]nemo.Model, error) {
	if s.firstLine == 0 {
		return nil, s.errorf(nil, "no dataset retrieved")
	}
	identifier := "NoSal-"
	if s.hasSal {
		identifier = "Sal-"
	}
	if s.hasAtm {
		identifier += "Atm"
	} else {
		identifier += "NoAtm"
	}
	models := make([]nemo.Model, 0, len(socatOutputFormats))
	for _, format := range socatOutputFormats {
		m, err := nemo.NewModel(s.deps.TemplatesDir, s.name, identifier, format)
		if err != nil {
			return nil, s.errorf(err, "model template")
		}
		models = append(models, m)
	}
	return models, nil
}

func (s *SOCAT) metadata() (*pangaea.Metadata, error) {
	if s.md == nil {
		return nil, s.errorf(nil, "no metadata loaded")
	}
	return s.md, nil
}

func (s *SOCAT) expoCode() (string, error) {
	md, err := s.metadata()
	if err != nil {
		return "", err
	}
	label := md.EventLabel()
	if label == "" {
		return "", s.errorf(nil, "metadata has no event label")
	}
	return trackSuffix.ReplaceAllString(label, "$1"), nil
}

func (s *SOCAT) shipCode() (string, error) {
	expo, err := s.expoCode()
	if err != nil {
		return "", err
	}
	if strings.Contains(expo, "-") {
		return shipCodeWithLeg.ReplaceAllString(expo, "$1"), nil
	}
	return shipCodePlain.ReplaceAllString(expo, "$1"), nil
}

// ResolveTag fills template tags from the current dataset.
func (s *SOCAT) ResolveTag(tag string) (string, bool, error) {
	var (
		value string
		err   error
	)
	switch tag {
	case "EXPOCODE":
		value, err = s.expoCode()
	case "SHIP_CODE":
		value, err = s.shipCode()
	case "FIRST_LINE":
		if s.firstLine > 0 {
			value = strconv.Itoa(s.firstLine)
		}
	case "SENSOR_DEPTH":
		var md *pangaea.Metadata
		if md, err = s.metadata(); err == nil {
			value = md.ElevationMin()
			if value == "" {
				value = defaultSensorDepth
			}
		}
	case "SHIP_NAME":
		var md *pangaea.Metadata
		if md, err = s.metadata(); err == nil {
			value = md.ShipName()
		}
	case "FIRST_AUTHOR":
		var md *pangaea.Metadata
		if md, err = s.metadata(); err == nil {
			value, _ = md.FirstAuthor()
		}
	case "START_DATE_MS":
		var t time.Time
		if t, err = s.StartDateTime(); err == nil {
			value = strconv.FormatInt(t.UnixMilli(), 10)
		}
	case "END_DATE_MS":
		var t time.Time
		if t, err = s.EndDateTime(); err == nil {
			value = strconv.FormatInt(t.UnixMilli(), 10)
		}
	case "CSR_REFERENCE":
		value, err = s.CSRReference()
	default:
		return "", false, &UnrecognisedTagError{Tag: tag}
	}
	if err != nil {
		return "", false, err
	}
	return value, value != "", nil
}

func (s *SOCAT) LocalCDIID() (string, error) {
	expo, err := s.expoCode()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d", expo, stationNumber), nil
}

func (s *SOCAT) DatasetID() (string, error)    { return s.expoCode() }
func (s *SOCAT) CruiseName() (string, error)   { return s.expoCode() }
func (s *SOCAT) PlatformCode() (string, error) { return s.shipCode() }

func (s *SOCAT) DOI() (string, error) {
	md, err := s.metadata()
	if err != nil {
		return "", err
	}
	doi := md.DOI()
	if doi == "" {
		return "", s.errorf(nil, "metadata has no citation URI")
	}
	return doi, nil
}

func (s *SOCAT) DOIURL() (string, error) {
	doi, err := s.DOI()
	if err != nil {
		return "", err
	}
	return doiURLPrefix + doi, nil
}

func (s *SOCAT) Abstract() (string, error) {
	md, err := s.metadata()
	if err != nil {
		return "", err
	}
	return md.Title() + abstractSuffix[s.name], nil
}

func (s *SOCAT) StartDateTime() (time.Time, error) {
	md, err := s.metadata()
	if err != nil {
		return time.Time{}, err
	}
	return md.StartTime()
}

func (s *SOCAT) EndDateTime() (time.Time, error) {
	md, err := s.metadata()
	if err != nil {
		return time.Time{}, err
	}
	return md.EndTime()
}

// StartDate is the start time truncated to its UTC day.
func (s *SOCAT) StartDate() (time.Time, error) {
	t, err := s.StartDateTime()
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (s *SOCAT) Bounds() (pangaea.Bounds, error) {
	md, err := s.metadata()
	if err != nil {
		return pangaea.Bounds{}, err
	}
	return md.Bounds()
}

func (s *SOCAT) DocumentationURL() (string, error) {
	md, err := s.metadata()
	if err != nil {
		return "", err
	}
	return md.ReferenceURI(otherVersion), nil
}

// QCComment returns the leading "Cruise QC flag: X" part of the comment, or
// an empty string.
func (s *SOCAT) QCComment() (string, error) {
	md, err := s.metadata()
	if err != nil {
		return "", err
	}
	comment := md.Comment()
	if !strings.HasPrefix(comment, qcCommentPrefix) {
		return "", nil
	}
	if utf8.RuneCountInString(comment) <= qcCommentLength {
		return comment, nil
	}
	return string([]rune(comment)[:qcCommentLength]), nil
}

// CSRReference looks up the cruise summary report for the ship on the start
// date. An empty result means no report covers the cruise.
func (s *SOCAT) CSRReference() (string, error) {
	if s.deps.CSR == nil {
		return "", nil
	}
	ship, err := s.shipCode()
	if err != nil {
		return "", err
	}
	start, err := s.StartDate()
	if err != nil {
		return "", err
	}
	code, _ := s.deps.CSR.Query(ship, start)
	return code, nil
}
