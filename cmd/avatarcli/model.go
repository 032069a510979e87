package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/embodiedlab/avatar-core/core"
	"github.com/embodiedlab/avatar-core/core/events"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87D7FF"))

	avatarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

const maxTranscriptLines = 12

type transcriptLine struct {
	speaker string
	text    string
	failed  bool
}

type eventMsg struct{ event events.Event }

type model struct {
	orchestrator *orchestration.Orchestrator
	events       <-chan events.Event

	spinner    spinner.Model
	width      int
	recording  bool
	thinking   bool
	speaking   bool
	failed     bool
	transcript []transcriptLine
}

func newModel(orchestrator *orchestration.Orchestrator, eventStream <-chan events.Event) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5F5FD7"))

	return model{
		orchestrator: orchestrator,
		events:       eventStream,
		spinner:      s,
		width:        80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

func (m model) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return tea.Quit()
		}
		return eventMsg{event: event}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m = m.toggleTalk()
		case "r":
			m.orchestrator.Reset(m.orchestrator.History().SystemMessage().Content)
			m.transcript = nil
			m.thinking, m.speaking, m.failed = false, false, false
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case eventMsg:
		m = m.handleEvent(msg.event)
		cmds = append(cmds, m.listenForEvents())
	}

	return m, tea.Batch(cmds...)
}

func (m model) toggleTalk() model {
	ctx := context.Background()
	if m.recording {
		m.recording = false
		if err := m.orchestrator.EndTurn(ctx); err != nil {
			m.transcript = appendLine(m.transcript, transcriptLine{speaker: "error", text: err.Error(), failed: true})
		}
		return m
	}

	m.recording = true
	m.failed = false
	if _, err := m.orchestrator.BeginTurn(ctx); err != nil {
		m.recording = false
		m.transcript = appendLine(m.transcript, transcriptLine{speaker: "error", text: err.Error(), failed: true})
	}
	return m
}

func (m model) handleEvent(event events.Event) model {
	switch typedEvent := event.(type) {
	case events.TurnThinking:
		m.thinking = true
		m.speaking = false
	case events.UserMessageSent:
		m.transcript = appendLine(m.transcript, transcriptLine{speaker: "you", text: typedEvent.Message.Content})
	case events.AIResponseReceived:
		m.transcript = appendLine(m.transcript, transcriptLine{speaker: "avatar", text: typedEvent.Message.Content})
	case events.AvatarStartSpeak:
		m.thinking = false
		m.speaking = true
	case events.TurnCompleted:
		m.thinking = false
	case events.TurnPreempted:
		m.thinking = false
		m.speaking = false
	case events.TurnFailed:
		m.thinking = false
		m.failed = true
	}
	return m
}

func appendLine(transcript []transcriptLine, line transcriptLine) []transcriptLine {
	transcript = append(transcript, line)
	if len(transcript) > maxTranscriptLines {
		transcript = transcript[len(transcript)-maxTranscriptLines:]
	}
	return transcript
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("avatar-core"))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	for _, line := range m.transcript {
		style := avatarStyle
		switch {
		case line.failed:
			style = errorStyle
		case line.speaker == "you":
			style = userStyle
		}
		b.WriteString(style.Render(wordwrap.String(fmt.Sprintf("%s: %s", line.speaker, line.text), width)))
		b.WriteString("\n")
	}
	if len(m.transcript) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("space: talk/stop  r: reset  q: quit"))
	return b.String()
}

func (m model) renderStatus() string {
	switch {
	case m.recording:
		return stateStyle.Render("● recording") + helpStyle.Render("  press space to stop")
	case m.thinking:
		return m.spinner.View() + stateStyle.Render(" thinking")
	case m.speaking:
		return stateStyle.Render("▶ speaking")
	case m.failed:
		return errorStyle.Render("✗ turn failed")
	default:
		return helpStyle.Render(fmt.Sprintf("idle (%s)", m.orchestrator.State()))
	}
}
