package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Summary is a cdi_summary row as served to MIKADO tooling.
type Summary struct {
	LocalCDIID           string    `json:"local_cdi_id"`
	PlatformID           int64     `json:"platform_id"`
	DatasetName          string    `json:"dataset_name"`
	DatasetID            string    `json:"dataset_id"`
	DOI                  string    `json:"doi"`
	DOIURL               string    `json:"doi_url"`
	Abstract             string    `json:"abstract"`
	CruiseName           string    `json:"cruise_name"`
	CruiseStartDate      time.Time `json:"cruise_start_date"`
	WestLongitude        float64   `json:"west_longitude"`
	EastLongitude        float64   `json:"east_longitude"`
	SouthLatitude        float64   `json:"south_latitude"`
	NorthLatitude        float64   `json:"north_latitude"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	DistributionDataSize string    `json:"distribution_data_size"`
	DocumentationURL     *string   `json:"documentation_url,omitempty"`
	CurvesDescription    *string   `json:"curves_description,omitempty"`
	CurvesName           *string   `json:"curves_name,omitempty"`
	CurvesCoordinates    *string   `json:"curves_coordinates,omitempty"`
	CSRReference         *string   `json:"csr_reference,omitempty"`
}

const summaryColumns = `
    local_cdi_id, platform_id, dataset_name, dataset_id, doi, doi_url, abstract, cruise_name,
    cruise_start_date, west_longitude, east_longitude, south_latitude, north_latitude,
    start_date, end_date, distribution_data_size, documentation_url,
    curves_description, curves_name, curves_coordinates, csr_reference
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (Summary, error) {
	var sum Summary
	var start, end int64
	if err := row.Scan(
		&sum.LocalCDIID,
		&sum.PlatformID,
		&sum.DatasetName,
		&sum.DatasetID,
		&sum.DOI,
		&sum.DOIURL,
		&sum.Abstract,
		&sum.CruiseName,
		&sum.CruiseStartDate,
		&sum.WestLongitude,
		&sum.EastLongitude,
		&sum.SouthLatitude,
		&sum.NorthLatitude,
		&start,
		&end,
		&sum.DistributionDataSize,
		&sum.DocumentationURL,
		&sum.CurvesDescription,
		&sum.CurvesName,
		&sum.CurvesCoordinates,
		&sum.CSRReference,
	); err != nil {
		return Summary{}, err
	}
	// start_date and end_date hold Unix seconds.
	sum.StartDate = time.Unix(start, 0).UTC()
	sum.EndDate = time.Unix(end, 0).UTC()
	return sum, nil
}

// ListSummaries returns up to limit rows ordered by local CDI ID.
func (s *Store) ListSummaries(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+summaryColumns+`FROM cdi_summary ORDER BY local_cdi_id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// GetSummary returns the row for localCDIID, or nil when there is none.
func (s *Store) GetSummary(ctx context.Context, localCDIID string) (*Summary, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+summaryColumns+`FROM cdi_summary WHERE local_cdi_id = $1`, localCDIID)
	sum, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
