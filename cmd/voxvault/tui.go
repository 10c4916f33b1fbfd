package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	engine "github.com/voxvault/voxvault-core/core"
)

type speaker int

const (
	speakerUser speaker = iota
	speakerAgent
)

type stateChangedMsg struct{ state engine.ConversationState }

type transcriptMsg struct {
	speaker speaker
	text    string
}

type errorMsg struct{ message string }

type vaultChangedMsg struct{}

type transcriptLine struct {
	speaker speaker
	text    string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

type model struct {
	voice *engine.ConversationEngine

	state      engine.ConversationState
	transcript []transcriptLine
	lastError  string
	vaultEdits int

	spinner spinner.Model
	width   int
	height  int
}

func newModel(voice *engine.ConversationEngine) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return model{
		voice:   voice,
		state:   engine.StateIdle,
		spinner: s,
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.voice.StopConversation()
			return m, tea.Quit
		case " ", "enter":
			if m.voice.IsActive() || m.state == engine.StateConnecting {
				m.voice.StopConversation()
			} else {
				m.lastError = ""
				go m.voice.StartConversation(context.Background())
			}
			return m, nil
		}

	case stateChangedMsg:
		m.state = msg.state
		return m, nil

	case transcriptMsg:
		m.transcript = append(m.transcript, transcriptLine{speaker: msg.speaker, text: msg.text})
		return m, nil

	case errorMsg:
		m.lastError = msg.message
		return m, nil

	case vaultChangedMsg:
		m.vaultEdits++
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("VoxVault"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	width := m.width - 4
	if width < 20 {
		width = 20
	}

	lines := m.transcript
	if maxLines := m.height - 8; maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	for _, line := range lines {
		label := userStyle.Render("you")
		if line.speaker == speakerAgent {
			label = agentStyle.Render("agent")
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, wordwrap.String(line.text, width)))
	}

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(wordwrap.String(m.lastError, width)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := "space: start conversation • q: quit"
	if m.voice.IsActive() {
		footer = "space: hang up • q: quit"
	}
	if m.vaultEdits > 0 {
		footer += fmt.Sprintf(" • vault edits this session: %d", m.vaultEdits)
	}
	b.WriteString(faintStyle.Render(footer))

	return borderStyle.Width(m.width - 2).Render(b.String())
}

func (m model) statusLine() string {
	switch m.state {
	case engine.StateConnecting:
		return m.spinner.View() + stateStyle.Render("connecting")
	case engine.StateListening:
		return stateStyle.Render("listening")
	case engine.StateUserSpeaking:
		return stateStyle.Render("hearing you")
	case engine.StateAgentSpeaking:
		return m.spinner.View() + stateStyle.Render("agent speaking")
	case engine.StateDisconnected:
		return faintStyle.Render("disconnected")
	default:
		return faintStyle.Render("idle")
	}
}
