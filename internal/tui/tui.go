package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/chatdoc/chatdoc"
	"github.com/sokinpui/chatdoc/cli"
	"github.com/sokinpui/chatdoc/internal/ui"
	"github.com/sokinpui/chatdoc/model"
)

// Labels for the progress steps reported by App.Send.
var stageNames = []string{
	"Building request",
	"Waiting for model",
	"Writing reply",
	"Done",
}

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

type progressMsg struct{ current, total int }

// doneMsg ends the run with either a summary or an error.
type doneMsg struct {
	summary model.Summary
	err     error
}

type phase int

const (
	phaseRunning phase = iota
	phaseDone
	phaseFailed
)

// Model shows a spinner while the app runs one command, then its summary.
type Model struct {
	app *chatdoc.App
	cfg *cli.Config

	ctx    context.Context
	cancel context.CancelFunc

	spinner spinner.Model
	phase   phase
	stage   int
	total   int
	result  doneMsg
}

func New(app *chatdoc.App, cfg *cli.Config) *Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle))
	ctx, cancel := context.WithCancel(context.Background())
	return &Model{
		app:     app,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
	}
}

// SetProgram routes the app's progress reports into p.
func (m *Model) SetProgram(p *tea.Program) {
	m.app.SetProgressCallback(func(current, total int) {
		p.Send(progressMsg{current: current, total: total})
	})
}

// Err returns the error the run ended with, if any.
func (m *Model) Err() error { return m.result.err }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "q" || k == "ctrl+c" {
			m.cancel()
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		m.stage, m.total = msg.current, msg.total
		return m, nil

	case doneMsg:
		m.result = msg
		m.phase = phaseDone
		if msg.err != nil {
			m.phase = phaseFailed
		}
		return m, tea.Quit
	}

	if m.phase != phaseRunning {
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	switch m.phase {
	case phaseFailed:
		return ui.ErrorStyle.Render("Error: "+m.result.err.Error()) + "\n"
	case phaseDone:
		return ui.RenderSummary(m.result.summary)
	}

	stage := stageNames[0]
	if m.stage > 0 && m.stage < len(stageNames) {
		stage = stageNames[m.stage]
	}
	if m.total > 0 {
		return fmt.Sprintf("%s [%d/%d] %s...", m.spinner.View(), m.stage, m.total, stage)
	}
	return fmt.Sprintf("%s %s...", m.spinner.View(), stage)
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.app.Execute(m.ctx, m.cfg)
	var detailed *chatdoc.DetailedError
	if errors.As(err, &detailed) {
		// The program is about to exit; the stack goes straight to stderr.
		fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
	}
	return doneMsg{summary: summary, err: err}
}
