// Package ui is the terminal chat client built on bubbletea.
package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/internal/render"
)

// controlTimeout bounds stop and clear requests.
const controlTimeout = 5 * time.Second

// Session is the part of chat.Session the UI drives.
type Session interface {
	Connect(ctx context.Context) error
	Stream(ctx context.Context, text string) (<-chan chat.StreamEvent, error)
	StopGeneration(ctx context.Context) error
	ClearConversation(ctx context.Context) error
	State() chat.State
}

var _ Session = (*chat.Session)(nil)

// Role says who wrote a message.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

// Message is one entry of the visible history.
type Message struct {
	Role      Role
	Text      string
	Cancelled bool

	rendered string
}

// Option configures a Model.
type Option func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *Model) { m.copy = fn }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// WithConnectOnStart makes Init connect the session.
func WithConnectOnStart() Option {
	return func(m *Model) { m.connectOnStart = true }
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	session    Session
	renderer   *render.Renderer
	renderOpts render.Options
	keys       KeyMap
	styles     Styles
	logger     zerolog.Logger
	copy       func(string) error

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	history []Message
	partial string
	// streaming is set from send until the exchange ends; waiting until
	// the first chunk arrives.
	streaming bool
	waiting   bool

	state  chat.State
	status string
	err    error

	width          int
	height         int
	connectOnStart bool
}

// New creates the chat model.
func New(session Session, opts render.Options, options ...Option) Model {
	input := textarea.New()
	input.Placeholder = "Send a message..."
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.Prompt = ""
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetKeys("alt+enter")
	input.Focus()

	vp := viewport.New(80, 20)
	vp.KeyMap = viewport.KeyMap{
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
	}

	m := Model{
		session:    session,
		renderOpts: opts,
		keys:       DefaultKeyMap(),
		styles:     DefaultStyles(),
		logger:     zerolog.Nop(),
		copy:       clipboard.WriteAll,
		input:      input,
		viewport:   vp,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:       help.New(),
		state:      session.State(),
	}
	for _, opt := range options {
		opt(&m)
	}
	m.renderer = m.newRenderer(opts.WordWrap)
	return m
}

// History returns the visible conversation.
func (m Model) History() []Message {
	return m.history
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.connectOnStart {
		cmds = append(cmds, m.connectCmd())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = "connected"
		m.state = m.session.State()
		return m, nil

	case streamStartedMsg:
		if msg.err != nil {
			m.streaming = false
			m.waiting = false
			m.err = msg.err
			return m, nil
		}
		return m, waitEvent(msg.events)

	case streamEventMsg:
		return m.handleEvent(msg)

	case controlDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.status = msg.action
		if msg.cleared {
			m.history = nil
			m.refresh()
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "copied " + msg.what
		}
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	m.input.SetWidth(max(msg.Width-2, 10))
	// header, banner, input box with border, help
	reserved := 1 + 1 + m.input.Height() + 2 + 1
	m.viewport.Width = msg.Width
	m.viewport.Height = max(msg.Height-reserved, 3)

	m.renderer = m.newRenderer(max(msg.Width-4, 20))
	for i := range m.history {
		m.history[i].rendered = ""
	}
	m.refresh()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		return m.submit()

	case key.Matches(msg, m.keys.Stop):
		return m, m.controlCmd("stopped", m.session.StopGeneration)

	case key.Matches(msg, m.keys.Clear):
		if m.streaming {
			m.status = "stop the reply before clearing"
			return m, nil
		}
		m.err = nil
		return m, m.clearCmd()

	case key.Matches(msg, m.keys.Reconnect):
		m.status = "reconnecting..."
		return m, m.connectCmd()

	case key.Matches(msg, m.keys.Copy):
		return m.copyLast()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if m.streaming {
		m.status = "a reply is still streaming"
		return m, nil
	}

	m.input.Reset()
	m.history = append(m.history, Message{Role: RoleUser, Text: text})
	m.streaming = true
	m.waiting = true
	m.partial = ""
	m.err = nil
	m.status = ""
	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(m.sendCmd(text), m.spinner.Tick)
}

func (m Model) handleEvent(msg streamEventMsg) (tea.Model, tea.Cmd) {
	ev := msg.event
	switch ev.Kind {
	case chat.EventChunk:
		m.waiting = false
		m.partial = ev.Text
		m.refresh()
		return m, waitEvent(msg.events)

	case chat.EventDone:
		m.finish(ev.Text, ev.Cancelled)
		if ev.Cancelled {
			m.status = "generation stopped"
		}

	case chat.EventError:
		if ev.Text != "" {
			m.finish(ev.Text, true)
		} else {
			m.finish("", false)
		}
		m.err = ev.Err
	}
	return m, nil
}

func (m *Model) finish(text string, cancelled bool) {
	if text != "" || cancelled {
		m.history = append(m.history, Message{Role: RoleAssistant, Text: text, Cancelled: cancelled})
	}
	m.streaming = false
	m.waiting = false
	m.partial = ""
	m.refresh()
}

func (m Model) copyLast() (tea.Model, tea.Cmd) {
	for i := len(m.history) - 1; i >= 0; i-- {
		msg := m.history[i]
		if msg.Role != RoleAssistant || msg.Text == "" {
			continue
		}
		what, text := "reply", msg.Text
		if blocks := render.CodeBlocks(msg.Text); len(blocks) > 0 {
			what, text = "code block", blocks[len(blocks)-1].Code
		}
		write := m.copy
		return m, func() tea.Msg {
			return copiedMsg{what: what, err: write(text)}
		}
	}
	m.status = "nothing to copy"
	return m, nil
}

func (m Model) newRenderer(wrap int) *render.Renderer {
	opts := m.renderOpts
	opts.WordWrap = wrap
	r, err := render.New(opts)
	if err != nil {
		m.logger.Warn().Err(err).Msg("markdown renderer unavailable")
		return render.Plain(opts.CodeStyle)
	}
	return r
}

func (m Model) connectCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return connectedMsg{err: session.Connect(context.Background())}
	}
}

// sendCmd starts an exchange. The context stays open for the life of the
// exchange because cancelling it would stop the reply.
func (m Model) sendCmd(text string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		events, err := session.Stream(context.Background(), text)
		return streamStartedMsg{events: events, err: err}
	}
}

func (m Model) controlCmd(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		err := fn(ctx)
		if errors.Is(err, chat.ErrNotConnected) {
			err = errors.New("not connected (ctrl+r to reconnect)")
		}
		return controlDoneMsg{action: action, err: err}
	}
}

// clearCmd asks the server to forget the conversation. Local history is
// dropped only after the request has been written.
func (m Model) clearCmd() tea.Cmd {
	send := m.controlCmd("conversation cleared", m.session.ClearConversation)
	return func() tea.Msg {
		msg := send().(controlDoneMsg)
		msg.cleared = msg.err == nil
		return msg
	}
}

func waitEvent(events <-chan chat.StreamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return streamEventMsg{event: ev, events: events}
	}
}
