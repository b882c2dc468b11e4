package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cdi_platforms (
	id INTEGER PRIMARY KEY,
	platform_code TEXT NOT NULL,
	start_date TEXT NOT NULL,
	dataset_id TEXT
);
CREATE TABLE IF NOT EXISTS cdi_summary (
	local_cdi_id TEXT NOT NULL,
	platform_id INTEGER NOT NULL,
	dataset_name TEXT NOT NULL,
	dataset_id TEXT NOT NULL,
	doi TEXT NOT NULL,
	doi_url TEXT NOT NULL,
	abstract TEXT NOT NULL,
	cruise_name TEXT NOT NULL,
	cruise_start_date TEXT NOT NULL,
	west_longitude REAL NOT NULL,
	east_longitude REAL NOT NULL,
	south_latitude REAL NOT NULL,
	north_latitude REAL NOT NULL,
	start_date INTEGER NOT NULL,
	end_date INTEGER NOT NULL,
	distribution_data_size TEXT NOT NULL,
	documentation_url TEXT,
	curves_description TEXT,
	curves_name TEXT,
	curves_coordinates TEXT,
	csr_reference TEXT
)`

const sqliteInsertSummary = `INSERT INTO cdi_summary (local_cdi_id, platform_id, dataset_name, dataset_id, doi, doi_url,
	abstract, cruise_name, cruise_start_date, west_longitude, east_longitude,
	south_latitude, north_latitude, start_date, end_date, distribution_data_size,
	documentation_url, curves_description, curves_name, curves_coordinates, csr_reference)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// SQLiteStore keeps the summary tables in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "cdi.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create summary tables: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) InsertSummary(ctx context.Context, rec models.SummaryRecord) error {
	return s.InsertSummaries(ctx, []models.SummaryRecord{rec})
}

// InsertSummaries writes all rows in one transaction.
func (s *SQLiteStore) InsertSummaries(ctx context.Context, recs []models.SummaryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, r := range recs {
		if _, err := tx.ExecContext(ctx, sqliteInsertSummary, summaryArgs(r)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert summary %s: %w", r.LocalCDIID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) PlatformID(ctx context.Context, code string, startDate time.Time, datasetID string) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, COALESCE(dataset_id, '') FROM cdi_platforms
WHERE platform_code = ? AND start_date <= ?
ORDER BY start_date DESC, id`, code, startDate.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("query platform %s: %w", code, err)
	}
	defer func() { _ = rows.Close() }()

	var platforms []models.Platform
	for rows.Next() {
		p := models.Platform{Code: code}
		if err := rows.Scan(&p.ID, &p.DatasetID); err != nil {
			return 0, fmt.Errorf("scan: %w", err)
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

// ClearSummaries deletes every cdi_summary row. SQLite has no TRUNCATE.
func (s *SQLiteStore) ClearSummaries(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cdi_summary`); err != nil {
		return fmt.Errorf("clear cdi_summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() { _ = s.db.Close() }

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }
