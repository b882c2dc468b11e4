package pangaea

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Metadata is the subset of a PANGAEA MetaData document used for CDI records.
// Repeated elements keep document order; accessors use the first non-empty
// value.
type Metadata struct {
	XMLName  xml.Name `xml:"MetaData"`
	Citation struct {
		Authors []Author `xml:"author"`
		URI     string   `xml:"URI"`
		Title   string   `xml:"title"`
	} `xml:"citation"`
	References []Reference `xml:"reference"`
	Extent     struct {
		Geographic struct {
			West  string `xml:"westBoundLongitude"`
			East  string `xml:"eastBoundLongitude"`
			South string `xml:"southBoundLatitude"`
			North string `xml:"northBoundLatitude"`
		} `xml:"geographic"`
		Temporal struct {
			Min string `xml:"minDateTime"`
			Max string `xml:"maxDateTime"`
		} `xml:"temporal"`
		Elevation []struct {
			Min string `xml:"min"`
		} `xml:"elevation"`
	} `xml:"extent"`
	CommentText string  `xml:"comment"`
	Events      []Event `xml:"event"`
}

type Author struct {
	LastName  string `xml:"lastName"`
	FirstName string `xml:"firstName"`
}

type Reference struct {
	RelationType string `xml:"relationType,attr"`
	URI          string `xml:"URI"`
}

type Event struct {
	Label string `xml:"label"`
	Basis struct {
		Name string `xml:"name"`
	} `xml:"basis"`
	Campaign struct {
		Name string `xml:"name"`
	} `xml:"campaign"`
}

// Bounds is the geographic extent in decimal degrees.
type Bounds struct {
	West, East, South, North float64
}

// ParseMetadata decodes a MetaData document.
func ParseMetadata(b []byte) (*Metadata, error) {
	var md Metadata
	if err := xml.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("parse metadata xml: %w", err)
	}
	return &md, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// EventLabel returns the label of the first event.
func (m *Metadata) EventLabel() string {
	if len(m.Events) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Events[0].Label)
}

// ShipName prefers the event basis name over the campaign name.
func (m *Metadata) ShipName() string {
	if len(m.Events) == 0 {
		return ""
	}
	return firstNonEmpty(m.Events[0].Basis.Name, m.Events[0].Campaign.Name)
}

// CampaignName returns the campaign of the first event.
func (m *Metadata) CampaignName() string {
	if len(m.Events) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Events[0].Campaign.Name)
}

// FirstAuthor returns "Last, First" for the first listed author.
func (m *Metadata) FirstAuthor() (string, bool) {
	if len(m.Citation.Authors) == 0 {
		return "", false
	}
	a := m.Citation.Authors[0]
	last, first := strings.TrimSpace(a.LastName), strings.TrimSpace(a.FirstName)
	if last == "" || first == "" {
		return "", false
	}
	return last + ", " + first, true
}

// DOI returns the citation URI without any "doi:" prefix.
func (m *Metadata) DOI() string {
	return strings.TrimPrefix(strings.TrimSpace(m.Citation.URI), "doi:")
}

func (m *Metadata) Title() string { return strings.TrimSpace(m.Citation.Title) }

func (m *Metadata) Comment() string { return strings.TrimSpace(m.CommentText) }

// ReferenceURI returns the URI of the first reference with relationType.
func (m *Metadata) ReferenceURI(relationType string) string {
	for _, r := range m.References {
		if r.RelationType == relationType {
			if uri := strings.TrimSpace(r.URI); uri != "" {
				return uri
			}
		}
	}
	return ""
}

// ElevationMin returns the minimum of the first elevation range.
func (m *Metadata) ElevationMin() string {
	if len(m.Extent.Elevation) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Extent.Elevation[0].Min)
}

// Bounds parses the geographic extent. Empty values read as zero.
func (m *Metadata) Bounds() (Bounds, error) {
	g := m.Extent.Geographic
	var b Bounds
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"west longitude", g.West, &b.West},
		{"east longitude", g.East, &b.East},
		{"south latitude", g.South, &b.South},
		{"north latitude", g.North, &b.North},
	}
	for _, f := range fields {
		v, err := parseCoordinate(f.name, f.raw)
		if err != nil {
			return Bounds{}, err
		}
		*f.dst = v
	}
	return b, nil
}

func parseCoordinate(name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &InvalidValueError{Field: name, Value: raw, Err: err}
	}
	return v, nil
}

var timeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

// StartTime returns the temporal extent minimum in UTC.
func (m *Metadata) StartTime() (time.Time, error) {
	return parseExtentTime("start time", m.Extent.Temporal.Min)
}

// EndTime returns the temporal extent maximum in UTC.
func (m *Metadata) EndTime() (time.Time, error) {
	return parseExtentTime("end time", m.Extent.Temporal.Max)
}

func parseExtentTime(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, &InvalidValueError{Field: name, Value: raw, Err: lastErr}
}
