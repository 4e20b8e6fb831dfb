package reports

import (
	"fmt"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType) (Generator, error) {
	switch reportType {
	case ReportTypeSeries:
		return &SeriesReport{}, nil
	case ReportTypeStatistics:
		return &StatisticsReport{}, nil
	case ReportTypePyramid:
		return &PyramidReport{}, nil
	case ReportTypeCasesByAge:
		return &CasesByAgeReport{}, nil
	case ReportTypeWeekly:
		return &WeeklyReport{}, nil
	case ReportTypeEnsemble:
		return &EnsembleReport{}, nil
	case ReportTypeAgeModel:
		return &AgeModelReport{}, nil
	case ReportTypeWeeklyModel:
		return &WeeklyModelReport{}, nil
	case ReportTypeWeeklyComparison:
		return &WeeklyComparisonReport{}, nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
