package main

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

func TestModelProgressAndResult(t *testing.T) {
	m := initialModel(simulation.DefaultConfig(), nil)

	next, _ := m.Update(progressMsg{done: 5, total: 10})
	m = next.(model)
	if m.fraction() != 0.5 {
		t.Errorf("Expected fraction 0.5, got %v", m.fraction())
	}
	if !strings.Contains(m.View(), "Running 5/10") {
		t.Errorf("Expected running view, got:\n%s", m.View())
	}

	summary := &aggregate.Summary{
		Weekly:          aggregate.WeeklyCaseSeries{{Window: 0, StartStep: 1, EndStep: 7, Value: 10}, {Window: 1, StartStep: 8, EndStep: 14, Value: 5}},
		AgeDistribution: aggregate.AgeDistribution{{Lo: 0, Hi: 40, Value: 9}, {Lo: 40, Hi: 80, Value: 6}},
	}
	next, _ = m.Update(resultMsg{summary: summary, attack: 0.15})
	m = next.(model)
	if !m.finished {
		t.Fatal("Expected finished model")
	}
	if view := m.View(); !strings.Contains(view, "attack rate 0.1500") {
		t.Errorf("Expected result view, got:\n%s", view)
	}
}

func TestModelError(t *testing.T) {
	m := initialModel(simulation.DefaultConfig(), nil)
	next, _ := m.Update(resultMsg{err: errors.New("ensemble incomplete")})
	if view := next.(model).View(); !strings.Contains(view, "Failed: ensemble incomplete") {
		t.Errorf("Expected failure view, got:\n%s", view)
	}
}

func TestModelQuitCancels(t *testing.T) {
	cancelled := false
	m := initialModel(simulation.DefaultConfig(), func() { cancelled = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("Expected quit to cancel the ensemble")
	}
	if cmd == nil {
		t.Error("Expected quit command")
	}
}

func TestRenderSummaryBars(t *testing.T) {
	out := renderSummary(&aggregate.Summary{
		Weekly:          aggregate.WeeklyCaseSeries{{StartStep: 1, EndStep: 7, Value: 4}},
		AgeDistribution: aggregate.AgeDistribution{{Lo: 0, Hi: 10, Value: 0}},
	})
	if !strings.Contains(out, strings.Repeat("█", barWidth)) {
		t.Errorf("Expected a full-width bar for the peak week:\n%s", out)
	}
	if !strings.Contains(out, "0-10") {
		t.Errorf("Expected age label:\n%s", out)
	}
}
