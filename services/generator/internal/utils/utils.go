package utils

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/squaregoldfish/cdi-generator/services/generator/internal/models"
	"github.com/squaregoldfish/cdi-generator/services/generator/internal/pangaea"
)

const bytesPerMB = 1 << 20

// SummarySource exposes the facts a summary row is built from.
type SummarySource interface {
	LocalCDIID() (string, error)
	DatasetName() string
	DatasetID() (string, error)
	PlatformCode() (string, error)
	DOI() (string, error)
	DOIURL() (string, error)
	Abstract() (string, error)
	CruiseName() (string, error)
	StartDate() (time.Time, error)
	StartDateTime() (time.Time, error)
	EndDateTime() (time.Time, error)
	Bounds() (pangaea.Bounds, error)
	DocumentationURL() (string, error)
	CSRReference() (string, error)
}

// PlatformResolver maps a cruise to its cdi_platforms ID.
type PlatformResolver interface {
	PlatformID(ctx context.Context, code string, startDate time.Time, datasetID string) (int64, error)
}

// BuildSummary gathers every fact for one NEMO output file. All failing
// lookups are reported together.
func BuildSummary(ctx context.Context, src SummarySource, platforms PlatformResolver, outputPath string) (models.SummaryRecord, error) {
	var rec models.SummaryRecord
	var errs error

	str := func(name string, dst *string, fn func() (string, error)) {
		v, err := fn()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
	tm := func(name string, dst *time.Time, fn func() (time.Time, error)) {
		v, err := fn()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}

	rec.DatasetName = src.DatasetName()
	str("local CDI ID", &rec.LocalCDIID, src.LocalCDIID)
	str("dataset ID", &rec.DatasetID, src.DatasetID)
	str("DOI", &rec.DOI, src.DOI)
	str("DOI URL", &rec.DOIURL, src.DOIURL)
	str("abstract", &rec.Abstract, src.Abstract)
	str("cruise name", &rec.CruiseName, src.CruiseName)
	str("documentation URL", &rec.DocumentationURL, src.DocumentationURL)
	str("CSR reference", &rec.CSRReference, src.CSRReference)
	tm("cruise start date", &rec.CruiseStartDate, src.StartDate)
	tm("start date", &rec.StartDate, src.StartDateTime)
	tm("end date", &rec.EndDate, src.EndDateTime)

	if b, err := src.Bounds(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("bounds: %w", err))
	} else {
		rec.WestLongitude, rec.EastLongitude = b.West, b.East
		rec.SouthLatitude, rec.NorthLatitude = b.South, b.North
	}

	if size, err := DataSize(outputPath); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		rec.DistributionDataSize = size
	}

	var code string
	str("platform code", &code, src.PlatformCode)
	if code != "" && !rec.CruiseStartDate.IsZero() {
		id, err := platforms.PlatformID(ctx, code, rec.CruiseStartDate, rec.DatasetID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("platform ID: %w", err))
		} else {
			rec.PlatformID = id
		}
	}

	if errs != nil {
		return models.SummaryRecord{}, errs
	}
	return rec, nil
}

// DataSize returns the size of the file at path in megabytes.
func DataSize(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot find NEMO output file: %w", err)
	}
	return FormatDataSize(info.Size()), nil
}

// FormatDataSize renders n bytes as megabytes with two decimals, rounding
// half up.
func FormatDataSize(n int64) string {
	return new(big.Rat).SetFrac64(n, bytesPerMB).FloatString(2)
}
