package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tunewire/pipeline"
	"tunewire/render"
)

// listen's terminal UI: a spinner shows the pipeline is alive, each
// SongRecognized/PipelineError event appends a styled line to a scrolling
// history, and NoMatch only updates the status line.

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("086"))
	artistStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type msgPipelineEvent struct{ event pipeline.Event }

func waitForEvent(ch <-chan pipeline.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return msgPipelineEvent{nil}
		}
		return msgPipelineEvent{e}
	}
}

type listenModel struct {
	spinner  spinner.Model
	eventCh  <-chan pipeline.Event
	cancel   func()
	history  []string
	status   string
	done     bool
}

func newListenModel(eventCh <-chan pipeline.Event, cancel func()) listenModel {
	s := spinner.New(spinner.WithSpinner(spinner.Line))
	s.Spinner.FPS = time.Second / 6
	return listenModel{
		spinner: s,
		eventCh: eventCh,
		cancel:  cancel,
		status:  "starting",
	}
}

func (m listenModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.eventCh))
}

func (m listenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			m.done = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case msgPipelineEvent:
		if msg.event == nil {
			m.done = true
			m.status = "stopped"
			return m, tea.Quit
		}
		m.applyEvent(msg.event)
		return m, waitForEvent(m.eventCh)
	}
	return m, nil
}

func (m *listenModel) applyEvent(e pipeline.Event) {
	switch e := e.(type) {
	case pipeline.CaptureStarted:
		m.status = "listening"
	case pipeline.CaptureStopped:
		m.status = "stopped"
	case pipeline.SongRecognized:
		t := render.FromResult(e.Result, e.At)
		line := titleStyle.Render(t.Title) + " " + artistStyle.Render("- "+t.Artist)
		m.history = append(m.history, line)
		m.status = "listening"
	case pipeline.NoMatch:
		m.status = "listening (no match)"
	case pipeline.PipelineError:
		m.history = append(m.history, errStyle.Render(e.Err.Error()))
	}
}

func (m listenModel) View() string {
	var b strings.Builder
	if m.done {
		b.WriteString(dimStyle.Render("tunewire: " + m.status))
	} else {
		fmt.Fprintf(&b, "%s tunewire: %s\n", m.spinner.View(), m.status)
	}
	b.WriteString("\n")
	for _, line := range m.history {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if !m.done {
		b.WriteString(dimStyle.Render("\npress q to stop"))
	}
	return b.String()
}
