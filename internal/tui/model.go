// Package tui hosts the conversation controller in a terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"medichat/internal/chat"
	"medichat/internal/models"
)

const (
	Title       = "MediCare AI"
	Subtitle    = "Your medical assistant"
	Placeholder = "Ask me about symptoms, medications, or general health questions..."

	inputHeight = 3
	// header, blank line, status line and help line
	chromeHeight = 4
)

// Conversation is the part of the controller the UI drives.
type Conversation interface {
	Initialize(ctx context.Context) error
	Send(ctx context.Context, content string) (*chat.Turn, error)
	Retry(ctx context.Context) (*chat.Turn, error)
	Render() chat.View
	State() chat.State
}

type initDoneMsg struct{ err error }

type roundTripMsg struct{ err error }

// Model is the bubbletea model of the chat screen.
type Model struct {
	conv     Conversation
	ctx      context.Context
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	ready   bool
	waiting bool
	width   int
	err     error
}

// NewModel builds the chat screen. ctx is passed to every controller call.
func NewModel(ctx context.Context, conv Conversation) Model {
	input := textarea.New()
	input.Placeholder = Placeholder
	input.ShowLineNumbers = false
	input.CharLimit = 4000
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetKeys("shift+enter", "ctrl+j")
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		conv:     conv,
		ctx:      ctx,
		viewport: viewport.New(80, 10),
		input:    input,
		spinner:  sp,
		waiting:  true,
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.initialize())
}

func (m Model) initialize() tea.Cmd {
	return func() tea.Msg {
		return initDoneMsg{err: m.conv.Initialize(m.ctx)}
	}
}

func (m Model) send(content string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.conv.Send(m.ctx, content)
		return roundTripMsg{err: err}
	}
}

func (m Model) retry() tea.Cmd {
	return func() tea.Msg {
		_, err := m.conv.Retry(m.ctx)
		return roundTripMsg{err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-inputHeight-chromeHeight)
		m.ready = true

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+r":
			if m.waiting {
				break
			}
			if m.conv.State() == chat.StateUninitialized {
				m.err = nil
				m.waiting = true
				cmds = append(cmds, m.initialize())
			} else if m.conv.Render().CanRetry {
				m.err = nil
				m.waiting = true
				m.input.Blur()
				cmds = append(cmds, m.retry())
			}
		case "enter":
			content := strings.TrimSpace(m.input.Value())
			if m.waiting || content == "" {
				break
			}
			m.err = nil
			m.waiting = true
			m.input.Reset()
			m.input.Blur()
			cmds = append(cmds, m.send(content))
		default:
			if !m.waiting {
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case initDoneMsg:
		m.waiting = false
		m.err = msg.err

	case roundTripMsg:
		m.waiting = false
		if msg.err != nil && !errors.Is(msg.err, chat.ErrEmptyMessage) && !errors.Is(msg.err, chat.ErrBusy) {
			m.err = msg.err
		}
		cmds = append(cmds, m.input.Focus())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
	return m, tea.Batch(cmds...)
}

func (m Model) renderConversation() string {
	view := m.conv.Render()
	width := max(20, m.width-4)

	var sb strings.Builder
	for i, mv := range view.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(renderMessage(mv, width))
		sb.WriteString("\n")
	}
	if view.Thinking {
		sb.WriteString("\n")
		sb.WriteString(m.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(thinkingStyle.Render(view.Indicator))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMessage(mv chat.MessageView, width int) string {
	sender := assistantStyle.Render(mv.Sender)
	if mv.Role == models.RoleUser {
		sender = userStyle.Render(mv.Sender)
	}
	header := sender
	if mv.Timestamp != "" {
		header += " " + timeStyle.Render(mv.Timestamp)
	}
	return header + "\n" + bodyStyle.Width(width).Render(mv.Content)
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center, headerStyle.Render(Title), subtitleStyle.Render(Subtitle))

	var status string
	switch {
	case m.err != nil && m.conv.State() == chat.StateUninitialized:
		status = errorStyle.Render(fmt.Sprintf("Could not start the conversation: %v (ctrl+r to try again)", m.err))
	case m.err != nil && m.conv.Render().CanRetry:
		status = errorStyle.Render(fmt.Sprintf("Error: %v (ctrl+r to retry)", m.err))
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	help := helpStyle.Render("enter send • ctrl+j newline • ctrl+r retry • esc quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.input.View(),
		help,
	)
}
