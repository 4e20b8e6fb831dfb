package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

type ReportType string

const (
	ReportTypeSeries     ReportType = "series"
	ReportTypeStatistics ReportType = "statistics"
	ReportTypePyramid    ReportType = "pyramid"
	ReportTypeCasesByAge ReportType = "cases_by_age"
	ReportTypeWeekly     ReportType = "weekly"
	ReportTypeEnsemble   ReportType = "ensemble"
	// Model-side comparison files, read next to the observed data files.
	ReportTypeAgeModel    ReportType = "age_model"
	ReportTypeWeeklyModel ReportType = "weekly_model"
	// ReportTypeWeeklyComparison puts model and observed windows side by side.
	ReportTypeWeeklyComparison ReportType = "weekly_comparison"
)

// ReportParams carries the run being reported on.
type ReportParams struct {
	Result  *simulation.EnsembleResult
	Summary *aggregate.Summary
	// Compartment selects the series for per-compartment reports.
	Compartment simulation.Compartment
	// Observed weekly cases, for comparison reports.
	Observed []float64
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

// Sink receives finished report files. blob.BlobStore satisfies it.
type Sink interface {
	Put(ctx context.Context, key string, reader io.Reader) error
}
