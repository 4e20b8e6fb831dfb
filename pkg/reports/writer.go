package reports

import (
	"context"
	"fmt"
	"path"

	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// FileSpec names one output file and the report that fills it.
type FileSpec struct {
	Key         string
	Type        ReportType
	Compartment simulation.Compartment
}

// Comparison file names, written next to the base path.
const (
	AgeModelFile         = "Age-distribution of cases - model.csv"
	WeeklyModelFile      = "Weekly cases - model.csv"
	WeeklyComparisonFile = "Weekly cases - comparison.csv"
)

// FileSet lists every file written for a run with the given base name,
// e.g. "out/flu" yields "out/flu-infected.csv".
func FileSet(base string, withObserved bool) []FileSpec {
	var specs []FileSpec
	for _, c := range simulation.Compartments {
		specs = append(specs,
			FileSpec{Key: fmt.Sprintf("%s-%s.csv", base, c), Type: ReportTypeSeries, Compartment: c},
			FileSpec{Key: fmt.Sprintf("%s-%s-statistics.csv", base, c), Type: ReportTypeStatistics, Compartment: c},
			FileSpec{Key: fmt.Sprintf("%s-%s-pyramid.csv", base, c), Type: ReportTypePyramid, Compartment: c},
		)
	}
	dir := path.Dir(base)
	specs = append(specs,
		FileSpec{Key: base + "-cases-by-age.csv", Type: ReportTypeCasesByAge},
		FileSpec{Key: base + "-weekly-cases.csv", Type: ReportTypeWeekly},
		FileSpec{Key: base + "-ensemble.csv", Type: ReportTypeEnsemble},
		FileSpec{Key: path.Join(dir, AgeModelFile), Type: ReportTypeAgeModel},
		FileSpec{Key: path.Join(dir, WeeklyModelFile), Type: ReportTypeWeeklyModel},
	)
	if withObserved {
		specs = append(specs, FileSpec{Key: path.Join(dir, WeeklyComparisonFile), Type: ReportTypeWeeklyComparison})
	}
	return specs
}

// WriteAll generates every file in FileSet and hands it to the sink.
// It returns the keys written, in order.
func WriteAll(ctx context.Context, sink Sink, base string, params ReportParams) ([]string, error) {
	specs := FileSet(base, len(params.Observed) > 0)
	keys := make([]string, 0, len(specs))
	for _, spec := range specs {
		gen, err := NewReportGenerator(spec.Type)
		if err != nil {
			return keys, err
		}
		p := params
		p.Compartment = spec.Compartment
		reader, err := gen.Generate(ctx, p)
		if err != nil {
			return keys, fmt.Errorf("failed to generate %s: %w", spec.Key, err)
		}
		if err := sink.Put(ctx, spec.Key, reader); err != nil {
			return keys, fmt.Errorf("failed to store %s: %w", spec.Key, err)
		}
		keys = append(keys, spec.Key)
	}
	return keys, nil
}
