package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/config"
	"github.com/rmax-ai/sirsim/pkg/logging"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

const (
	viewportHeight = 16
	barWidth       = 40
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(80)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(80)
)

type progressMsg struct {
	done, total int
}

type resultMsg struct {
	summary *aggregate.Summary
	attack  float64
	elapsed time.Duration
	err     error
}

type model struct {
	cfg      simulation.Config
	cancel   context.CancelFunc
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	done, total int
	summary     *aggregate.Summary
	attack      float64
	elapsed     time.Duration
	err         error
	finished    bool
}

func initialModel(cfg simulation.Config, cancel context.CancelFunc) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	vp := viewport.New(80, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)

	return model{
		cfg:      cfg,
		cancel:   cancel,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		viewport: vp,
		total:    cfg.NTrajectories,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.done, m.total = msg.done, msg.total

	case resultMsg:
		m.finished = true
		m.err = msg.err
		m.summary = msg.summary
		m.attack = msg.attack
		m.elapsed = msg.elapsed
		if m.summary != nil {
			m.viewport.SetContent(renderSummary(m.summary))
		}

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}
	return m, nil
}

func (m model) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m model) View() string {
	header := headerStyle.Render(fmt.Sprintf("sirsim  λ=%g Ɣ=%g N=%d trajectories=%d",
		m.cfg.Lambda, m.cfg.Gamma, m.cfg.NPeople, m.cfg.NTrajectories))

	var body string
	switch {
	case !m.finished:
		body = paneStyle.Render(fmt.Sprintf("%s Running %d/%d\n\n%s",
			m.spinner.View(), m.done, m.total, m.progress.ViewAs(m.fraction())))
	case m.err != nil:
		body = paneStyle.Render(errorStyle.Render(fmt.Sprintf("Failed: %v", m.err)))
	default:
		status := okStyle.Render(fmt.Sprintf("Done in %s • attack rate %.4f", m.elapsed.Round(time.Millisecond), m.attack))
		body = lipgloss.JoinVertical(lipgloss.Left, paneStyle.Render(status), m.viewport.View())
	}

	footer := subtleStyle.Render("\nPress q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// renderSummary draws the weekly and age series as horizontal bars.
func renderSummary(s *aggregate.Summary) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Weekly cases") + "\n\n")
	weekly := s.Weekly.Rows()
	writeBars(&sb, labels(weekly), s.Weekly.Values())

	sb.WriteString("\n" + lipgloss.NewStyle().Bold(true).Underline(true).Render("Cases by age") + "\n\n")
	ages := make([]string, len(s.AgeDistribution))
	for i, b := range s.AgeDistribution {
		ages[i] = fmt.Sprintf("%g-%g", b.Lo, b.Hi)
	}
	writeBars(&sb, ages, s.AgeDistribution.Values())
	return sb.String()
}

func labels(rows []aggregate.LabeledValue) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Label
	}
	return out
}

func writeBars(sb *strings.Builder, names []string, values []float64) {
	var peak float64
	for _, v := range values {
		peak = max(peak, v)
	}
	for i, v := range values {
		n := 0
		if peak > 0 {
			n = int(v / peak * barWidth)
		}
		fmt.Fprintf(sb, "%s %s %.1f\n", labelStyle.Render(names[i]), barStyle.Render(strings.Repeat("█", n)), v)
	}
}

func runEnsemble(ctx context.Context, cfg simulation.Config, p *tea.Program) {
	started := time.Now()
	runner, err := simulation.NewEnsembleRunner(cfg,
		simulation.WithLogger(logging.Discard()),
		simulation.WithProgress(func(done, total int) { p.Send(progressMsg{done, total}) }),
	)
	if err != nil {
		p.Send(resultMsg{err: err})
		return
	}
	res, err := runner.Run(ctx)
	if err != nil {
		p.Send(resultMsg{err: err})
		return
	}
	summary, err := aggregate.Summarize(res)
	attack, _ := res.Metric("attack_rate")
	p.Send(resultMsg{summary: summary, attack: attack, elapsed: time.Since(started), err: err})
}

func main() {
	configPath := flag.String("config", "", "Path to YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	sim, err := cfg.ToSimulation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(initialModel(sim, cancel), tea.WithAltScreen())
	go runEnsemble(ctx, sim, p)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
