package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.bannerView())
	b.WriteByte('\n')
	b.WriteString(m.styles.Input.Render(m.input.View()))
	b.WriteByte('\n')
	b.WriteString(m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return b.String()
}

func (m Model) headerView() string {
	style := m.styles.Disconnected
	if m.state == chat.StateConnected {
		style = m.styles.Connected
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Header.Render("stream chat"),
		style.Render("● "+strings.ToLower(m.state.String())),
	)
}

func (m Model) bannerView() string {
	switch {
	case m.err != nil:
		return m.styles.Error.Render("error: " + m.err.Error())
	case m.waiting:
		return m.spinner.View() + m.styles.Status.Render(" waiting for reply...")
	case m.streaming:
		return m.styles.Status.Render("streaming (ctrl+s to stop)")
	default:
		return m.styles.Status.Render(m.status)
	}
}

// refresh rebuilds the viewport content. It follows new output only when the
// viewport was already at the bottom, so scrolling back through history is
// not interrupted by incoming chunks.
func (m *Model) refresh() {
	follow := m.viewport.AtBottom()

	var b strings.Builder
	for i := range m.history {
		b.WriteString(m.renderMessage(&m.history[i]))
	}
	if m.streaming && m.partial != "" {
		b.WriteString(m.styles.BotLabel.Render("Assistant"))
		b.WriteByte('\n')
		b.WriteString(m.renderer.Markdown(m.partial))
	}
	m.viewport.SetContent(b.String())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessage(msg *Message) string {
	if msg.rendered != "" {
		return msg.rendered
	}

	var b strings.Builder
	switch msg.Role {
	case RoleUser:
		b.WriteString(m.styles.UserLabel.Render("You"))
		b.WriteByte('\n')
		b.WriteString(m.styles.UserText.Render(msg.Text))
		b.WriteString("\n\n")
	case RoleAssistant:
		b.WriteString(m.styles.BotLabel.Render("Assistant"))
		b.WriteByte('\n')
		b.WriteString(m.renderer.Markdown(msg.Text))
		if msg.Cancelled {
			b.WriteString(m.styles.Cancelled.Render("(stopped)"))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	msg.rendered = b.String()
	return msg.rendered
}
