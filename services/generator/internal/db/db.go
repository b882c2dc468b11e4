package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/models"
)

// SummaryStore persists CDI summary rows and resolves platform IDs.
type SummaryStore interface {
	InsertSummary(ctx context.Context, rec models.SummaryRecord) error
	InsertSummaries(ctx context.Context, recs []models.SummaryRecord) error
	PlatformID(ctx context.Context, code string, startDate time.Time, datasetID string) (int64, error)
	ClearSummaries(ctx context.Context) error
	Close()
}

// MissingPlatformError means cdi_platforms has no usable row for a cruise.
type MissingPlatformError struct {
	Code      string
	StartDate time.Time
	DatasetID string
}

func (e *MissingPlatformError) Error() string {
	return fmt.Sprintf("no platform entry for code %s starting on or before %s (dataset %s)",
		e.Code, e.StartDate.Format("2006-01-02"), e.DatasetID)
}

// Open connects to the database named by url. postgres:// and
// postgresql:// URLs use pgx, sqlite://<path> uses an embedded SQLite file.
func Open(ctx context.Context, url string) (SummaryStore, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPostgresStore(pool), nil
	case strings.HasPrefix(url, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", url)
	}
}

// choosePlatform picks the row bound to datasetID, falling back to the first
// row with no dataset binding.
func choosePlatform(rows []models.Platform, datasetID string) (int64, bool) {
	unbound := int64(-1)
	for _, p := range rows {
		if p.DatasetID == "" {
			if unbound < 0 {
				unbound = p.ID
			}
			continue
		}
		if p.DatasetID == datasetID {
			return p.ID, true
		}
	}
	return unbound, unbound >= 0
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func summaryArgs(r models.SummaryRecord) []any {
	return []any{
		r.LocalCDIID, r.PlatformID, r.DatasetName, r.DatasetID, r.DOI, r.DOIURL,
		r.Abstract, r.CruiseName, r.CruiseStartDate.UTC().Format("2006-01-02"),
		r.WestLongitude, r.EastLongitude, r.SouthLatitude, r.NorthLatitude,
		r.StartDate.Unix(), r.EndDate.Unix(), r.DistributionDataSize,
		nullable(r.DocumentationURL),
		nullable(r.CurvesDescription), nullable(r.CurvesName), nullable(r.CurvesCoordinates),
		nullable(r.CSRReference),
	}
}

// PostgresStore is the production summary store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresInsertSummary = `INSERT INTO cdi_summary (local_cdi_id, platform_id, dataset_name, dataset_id, doi, doi_url,
    abstract, cruise_name, cruise_start_date, west_longitude, east_longitude,
    south_latitude, north_latitude, start_date, end_date, distribution_data_size,
    documentation_url, curves_description, curves_name, curves_coordinates, csr_reference)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::date,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

// InsertSummary writes a single summary row.
func (s *PostgresStore) InsertSummary(ctx context.Context, rec models.SummaryRecord) error {
	return s.InsertSummaries(ctx, []models.SummaryRecord{rec})
}

// InsertSummaries writes all rows of one dataset in a single batch.
func (s *PostgresStore) InsertSummaries(ctx context.Context, recs []models.SummaryRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(postgresInsertSummary, summaryArgs(r)...)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for _, r := range recs {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("insert summary %s: %w", r.LocalCDIID, err)
		}
	}

	return nil
}

// PlatformID looks up the platform for a cruise.
func (s *PostgresStore) PlatformID(ctx context.Context, code string, startDate time.Time, datasetID string) (int64, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, COALESCE(dataset_id, '')
FROM cdi_platforms
WHERE platform_code = $1 AND start_date <= $2::date
ORDER BY start_date DESC, id`, code, startDate.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("query platform %s: %w", code, err)
	}
	defer rows.Close()

	var platforms []models.Platform
	for rows.Next() {
		p := models.Platform{Code: code}
		if err := rows.Scan(&p.ID, &p.DatasetID); err != nil {
			return 0, err
		}
		platforms = append(platforms, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	id, ok := choosePlatform(platforms, datasetID)
	if !ok {
		return 0, &MissingPlatformError{Code: code, StartDate: startDate, DatasetID: datasetID}
	}
	return id, nil
}

// ClearSummaries empties cdi_summary.
func (s *PostgresStore) ClearSummaries(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE cdi_summary`); err != nil {
		return fmt.Errorf("clear cdi_summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// IsMissingPlatform reports whether err is a *MissingPlatformError.
func IsMissingPlatform(err error) bool {
	var mp *MissingPlatformError
	return errors.As(err, &mp)
}
