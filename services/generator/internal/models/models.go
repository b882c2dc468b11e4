package models

import "time"

// SummaryRecord is one row of the cdi_summary table read by MIKADO.
type SummaryRecord struct {
	LocalCDIID           string
	PlatformID           int64
	DatasetName          string
	DatasetID            string
	DOI                  string
	DOIURL               string
	Abstract             string
	CruiseName           string
	CruiseStartDate      time.Time
	WestLongitude        float64
	EastLongitude        float64
	SouthLatitude        float64
	NorthLatitude        float64
	StartDate            time.Time
	EndDate              time.Time
	DistributionDataSize string
	DocumentationURL     string
	CurvesDescription    string
	CurvesName           string
	CurvesCoordinates    string
	CSRReference         string
}

// Platform is a cdi_platforms row. DatasetID is empty for platforms that are
// not bound to a single dataset.
type Platform struct {
	ID        int64
	Code      string
	StartDate time.Time
	DatasetID string
}
