// Package plot renders ensemble summaries as PNG charts.
package plot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

const (
	width  = 1024
	height = 480
)

var compartmentStyle = map[simulation.Compartment]chart.Style{
	simulation.Susceptible: {StrokeColor: chart.ColorBlue, StrokeWidth: 3},
	simulation.Infected:    {StrokeColor: chart.ColorRed, StrokeWidth: 3},
	simulation.Recovered:   {StrokeColor: chart.ColorGreen, StrokeWidth: 3},
}

// yRange pads the maximum so flat or all-zero series still render.
func yRange(values ...[]float64) *chart.ContinuousRange {
	max := 0.0
	for _, vs := range values {
		for _, v := range vs {
			max = math.Max(max, v)
		}
	}
	if max == 0 {
		max = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: max * 1.05}
}

func xRange(n int) *chart.ContinuousRange {
	return &chart.ContinuousRange{Min: 0, Max: math.Max(float64(n-1), 1)}
}

// Compartments plots the ensemble-mean S, I and R totals over time.
func Compartments(res *simulation.EnsembleResult) (io.Reader, error) {
	if len(res.Logs) == 0 {
		return nil, fmt.Errorf("ensemble has no trajectories")
	}
	steps := res.Config.Steps()
	times := make([]float64, steps+1)
	for i := range times {
		times[i] = float64(i) * res.Config.Dt
	}

	var (
		series []chart.Series
		all    [][]float64
	)
	for _, c := range []simulation.Compartment{simulation.Susceptible, simulation.Infected, simulation.Recovered} {
		values := append([]float64{initialMean(res, c)}, res.MeanSeries(c)...)
		all = append(all, values)
		series = append(series, chart.ContinuousSeries{
			Name:    c.String(),
			XValues: times,
			YValues: values,
			Style:   compartmentStyle[c],
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Ensemble mean of %d trajectories", len(res.Logs)),
		Width:  width,
		Height: height,
		XAxis:  chart.XAxis{Name: "time", Range: &chart.ContinuousRange{Min: 0, Max: math.Max(times[len(times)-1], res.Config.Dt)}},
		YAxis:  chart.YAxis{Name: "people", Range: yRange(all...)},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return render(graph.Render)
}

func initialMean(res *simulation.EnsembleResult, c simulation.Compartment) float64 {
	var sum float64
	for _, l := range res.Logs {
		sum += float64(l.Initial.Total(c))
	}
	return sum / float64(len(res.Logs))
}

// WeeklyCases plots model weekly cases, with observed counts when given.
func WeeklyCases(s *aggregate.Summary, observed []float64) (io.Reader, error) {
	model := s.Weekly.Values()
	if len(model) == 0 {
		return nil, fmt.Errorf("summary has no weekly windows")
	}
	series := []chart.Series{chart.ContinuousSeries{
		Name:    "model",
		XValues: indices(len(model)),
		YValues: model,
		Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 3},
	}}
	n := len(model)
	if len(observed) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    "observed",
			XValues: indices(len(observed)),
			YValues: observed,
			Style: chart.Style{
				StrokeColor: drawing.Color{R: 255, G: 165, B: 0, A: 255},
				StrokeWidth: 3,
				DotWidth:    4,
				DotColor:    drawing.Color{R: 255, G: 165, B: 0, A: 255},
			},
		})
		if len(observed) > n {
			n = len(observed)
		}
	}

	graph := chart.Chart{
		Title:  "Weekly cases",
		Width:  width,
		Height: height,
		XAxis:  chart.XAxis{Name: "window", Range: xRange(n)},
		YAxis:  chart.YAxis{Name: "cases", Range: yRange(model, observed)},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return render(graph.Render)
}

// AgeDistribution draws cumulative cases per age bin as bars.
func AgeDistribution(s *aggregate.Summary) (io.Reader, error) {
	if len(s.AgeDistribution) == 0 {
		return nil, fmt.Errorf("summary has no age bins")
	}
	bars := make([]chart.Value, len(s.AgeDistribution))
	for i, b := range s.AgeDistribution {
		bars[i] = chart.Value{Label: fmt.Sprintf("%g-%g", b.Lo, b.Hi), Value: b.Value}
	}
	const barWidth, barSpacing = 40, 10
	graph := chart.BarChart{
		Title:      "Cases by age",
		Width:      max(width/2, len(bars)*(barWidth+barSpacing)+200),
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis:      chart.YAxis{Range: yRange(s.AgeDistribution.Values())},
		Bars:       bars,
	}
	return render(graph.Render)
}

func indices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func render(fn func(chart.RendererProvider, io.Writer) error) (io.Reader, error) {
	buf := &bytes.Buffer{}
	if err := fn(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}

// Sink receives rendered charts.
type Sink interface {
	Put(ctx context.Context, key string, reader io.Reader) error
}

// WriteAll renders every chart for a run and returns the keys written.
func WriteAll(ctx context.Context, sink Sink, base string, res *simulation.EnsembleResult, s *aggregate.Summary, observed []float64) ([]string, error) {
	charts := []struct {
		key  string
		draw func() (io.Reader, error)
	}{
		{base + "-compartments.png", func() (io.Reader, error) { return Compartments(res) }},
		{base + "-weekly-cases.png", func() (io.Reader, error) { return WeeklyCases(s, observed) }},
		{base + "-cases-by-age.png", func() (io.Reader, error) { return AgeDistribution(s) }},
	}
	var keys []string
	for _, c := range charts {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		r, err := c.draw()
		if err != nil {
			return keys, fmt.Errorf("%s: %w", c.key, err)
		}
		if err := sink.Put(ctx, c.key, r); err != nil {
			return keys, fmt.Errorf("failed to store %s: %w", c.key, err)
		}
		keys = append(keys, c.key)
	}
	return keys, nil
}
