package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

var (
	errNoResult  = errors.New("report requires an ensemble result")
	errNoSummary = errors.New("report requires an ensemble summary")
)

// table wraps a csv.Writer over an in-memory buffer.
type table struct {
	buf    *bytes.Buffer
	writer *csv.Writer
}

func newTable(headers ...string) (*table, error) {
	buf := &bytes.Buffer{}
	t := &table{buf: buf, writer: csv.NewWriter(buf)}
	if err := t.writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return t, nil
}

func (t *table) row(fields ...string) error {
	if err := t.writer.Write(fields); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (t *table) done() (io.Reader, error) {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		return nil, fmt.Errorf("csv writer error: %w", err)
	}
	return t.buf, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
func itoa(v int) string     { return strconv.Itoa(v) }

// SeriesReport writes one column per trajectory of a compartment's
// population total, one row per step starting at t=0.
type SeriesReport struct{}

func (r *SeriesReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	res := params.Result
	if res == nil {
		return nil, errNoResult
	}
	headers := []string{"step", "time"}
	for _, log := range res.Logs {
		headers = append(headers, fmt.Sprintf("trajectory_%d", log.ID))
	}
	t, err := newTable(headers...)
	if err != nil {
		return nil, err
	}

	c := params.Compartment
	initial := []string{"0", "0"}
	for _, log := range res.Logs {
		initial = append(initial, itoa(log.Initial.Total(c)))
	}
	if err := t.row(initial...); err != nil {
		return nil, err
	}
	steps := res.Config.Steps()
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields := []string{itoa(step + 1), ftoa(float64(step+1) * res.Config.Dt)}
		for _, log := range res.Logs {
			fields = append(fields, itoa(log.Records[step].Total(c)))
		}
		if err := t.row(fields...); err != nil {
			return nil, err
		}
	}
	return t.done()
}

// StatisticsReport writes sum/mean/min/max of a compartment per trajectory,
// followed by the same statistics of the ensemble mean.
type StatisticsReport struct{}

func (r *StatisticsReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	res := params.Result
	if res == nil {
		return nil, errNoResult
	}
	t, err := newTable("trajectory", "sum", "mean", "min", "max")
	if err != nil {
		return nil, err
	}
	name := params.Compartment.String()
	write := func(label string, stats []aggregate.Statistics) error {
		for _, st := range stats {
			if st.Series != name {
				continue
			}
			return t.row(label, ftoa(st.Sum), ftoa(st.Mean), ftoa(st.Min), ftoa(st.Max))
		}
		return nil
	}
	for _, log := range res.Logs {
		if err := write(itoa(log.ID), aggregate.TimeStatistics(log)); err != nil {
			return nil, err
		}
	}
	if err := write("mean", aggregate.MeanTimeStatistics(res)); err != nil {
		return nil, err
	}
	return t.done()
}

// PyramidReport writes a compartment by trajectory, period and age bin.
type PyramidReport struct{}

func (r *PyramidReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	res := params.Result
	if res == nil {
		return nil, errNoResult
	}
	t, err := newTable("trajectory", "period", "age_lo", "age_hi", "value")
	if err != nil {
		return nil, err
	}
	for _, log := range res.Logs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, row := range aggregate.Pyramid(log, res.Bins, params.Compartment, res.Config.PLength) {
			if err := t.row(itoa(log.ID), itoa(row.Period), ftoa(row.Lo), ftoa(row.Hi), ftoa(row.Value)); err != nil {
				return nil, err
			}
		}
	}
	return t.done()
}

// CasesByAgeReport writes cumulative cases per age bin for every trajectory
// and for the ensemble mean.
type CasesByAgeReport struct{}

func (r *CasesByAgeReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	res := params.Result
	if res == nil {
		return nil, errNoResult
	}
	t, err := newTable("trajectory", "age_lo", "age_hi", "cases")
	if err != nil {
		return nil, err
	}
	for _, log := range res.Logs {
		dist, err := aggregate.AgeDistributionOf(log, res.Bins)
		if err != nil {
			return nil, fmt.Errorf("trajectory %d: %w", log.ID, err)
		}
		for _, b := range dist.Rows() {
			if err := t.row(itoa(log.ID), ftoa(b.Lo), ftoa(b.Hi), ftoa(b.Value)); err != nil {
				return nil, err
			}
		}
	}
	for _, b := range aggregate.AgeDistributionMean(res).Rows() {
		if err := t.row("mean", ftoa(b.Lo), ftoa(b.Hi), ftoa(b.Value)); err != nil {
			return nil, err
		}
	}
	return t.done()
}

// WeeklyReport writes the ensemble-mean weekly cases, raw and normalized.
type WeeklyReport struct{}

func (r *WeeklyReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	s := params.Summary
	if s == nil {
		return nil, errNoSummary
	}
	t, err := newTable("window", "start_step", "end_step", "cases", string(s.Normalization))
	if err != nil {
		return nil, err
	}
	for i, w := range s.Weekly {
		if err := t.row(itoa(w.Window), itoa(w.StartStep), itoa(w.EndStep), ftoa(w.Value), ftoa(s.WeeklyNormalized[i].Value)); err != nil {
			return nil, err
		}
	}
	return t.done()
}

// EnsembleReport writes per-step, per-bin mean and variance of every compartment.
type EnsembleReport struct{}

func (r *EnsembleReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	res := params.Result
	if res == nil {
		return nil, errNoResult
	}
	t, err := newTable("step", "time", "compartment", "age_lo", "age_hi", "mean", "variance")
	if err != nil {
		return nil, err
	}
	for _, s := range res.Summary {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, c := range simulation.Compartments {
			for b, m := range s.Values(c) {
				bin := res.Bins[b]
				if err := t.row(itoa(s.Step), ftoa(s.Time), c.String(), ftoa(bin.Lo), ftoa(bin.Hi), ftoa(m.Mean), ftoa(m.Variance)); err != nil {
					return nil, err
				}
			}
		}
	}
	return t.done()
}

// AgeModelReport writes the normalized age distribution as (age_lo, age_hi, value).
type AgeModelReport struct{}

func (r *AgeModelReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	s := params.Summary
	if s == nil {
		return nil, errNoSummary
	}
	t, err := newTable("age_lo", "age_hi", "value")
	if err != nil {
		return nil, err
	}
	for _, b := range s.AgeNormalized.Rows() {
		if err := t.row(ftoa(b.Lo), ftoa(b.Hi), ftoa(b.Value)); err != nil {
			return nil, err
		}
	}
	return t.done()
}

// WeeklyModelReport writes the normalized weekly series as (label, value).
type WeeklyModelReport struct{}

func (r *WeeklyModelReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	s := params.Summary
	if s == nil {
		return nil, errNoSummary
	}
	t, err := newTable("window", "value")
	if err != nil {
		return nil, err
	}
	for _, row := range s.WeeklyNormalized.Rows() {
		if err := t.row(row.Label, ftoa(row.Value)); err != nil {
			return nil, err
		}
	}
	return t.done()
}

// WeeklyComparisonReport lines up model and observed weekly cases. Windows
// present on only one side leave the other column empty.
type WeeklyComparisonReport struct{}

func (r *WeeklyComparisonReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	s := params.Summary
	if s == nil {
		return nil, errNoSummary
	}
	t, err := newTable("window", "model", "observed")
	if err != nil {
		return nil, err
	}
	n := len(s.Weekly)
	if len(params.Observed) > n {
		n = len(params.Observed)
	}
	for i := 0; i < n; i++ {
		model, observed := "", ""
		if i < len(s.Weekly) {
			model = ftoa(s.Weekly[i].Value)
		}
		if i < len(params.Observed) {
			observed = ftoa(params.Observed[i])
		}
		if err := t.row(itoa(i), model, observed); err != nil {
			return nil, err
		}
	}
	return t.done()
}
