package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/internal/render"
)

type fakeSession struct {
	mu         sync.Mutex
	state      chat.State
	events     chan chat.StreamEvent
	streamErr  error
	connectErr error
	controlErr error
	sent       []string
	stops      int
	clears     int
	connects   int
}

var _ Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{state: chat.StateConnected, events: make(chan chat.StreamEvent, 16)}
}

func (f *fakeSession) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr == nil {
		f.state = chat.StateConnected
	}
	return f.connectErr
}

func (f *fakeSession) Stream(_ context.Context, text string) (<-chan chat.StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	f.sent = append(f.sent, text)
	return f.events, nil
}

func (f *fakeSession) StopGeneration(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.controlErr
}

func (f *fakeSession) ClearConversation(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return f.controlErr
}

func (f *fakeSession) State() chat.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func newTestModel(t *testing.T, session Session, opts ...Option) Model {
	t.Helper()
	m := New(session, render.Options{Style: "notty", WordWrap: 80, CodeStyle: "monokai"}, opts...)
	return update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

var (
	enterKey    = tea.KeyMsg{Type: tea.KeyEnter}
	altEnterKey = tea.KeyMsg{Type: tea.KeyEnter, Alt: true}
)

// startExchange types text, submits it and runs the send command.
func startExchange(t *testing.T, m Model, session *fakeSession, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	m, cmd := updateCmd(t, m, enterKey)
	require.NotNil(t, cmd)

	m, wait := updateCmd(t, m, m.sendCmd(text)())
	require.NotNil(t, wait)
	return m, wait
}

func TestModel_SubmitAndStream(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)

	m, wait := startExchange(t, m, session, "hello")
	assert.Equal(t, []string{"hello"}, session.sent)
	assert.Empty(t, m.input.Value())
	assert.True(t, m.streaming)
	assert.True(t, m.waiting)
	require.Len(t, m.History(), 1)
	assert.Equal(t, Message{Role: RoleUser, Text: "hello"}, Message{Role: m.History()[0].Role, Text: m.History()[0].Text})

	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: "Hello", Delta: "Hello"}
	m, wait = updateCmd(t, m, wait())
	assert.False(t, m.waiting)
	assert.Equal(t, "Hello", m.partial)
	assert.Contains(t, m.viewport.View(), "Hello")
	require.NotNil(t, wait)

	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: "Hello there", Delta: " there"}
	m, wait = updateCmd(t, m, wait())
	assert.Equal(t, "Hello there", m.partial)

	session.events <- chat.StreamEvent{Kind: chat.EventDone, Text: "Hello there"}
	m, cmd := updateCmd(t, m, wait())
	assert.Nil(t, cmd)
	assert.False(t, m.streaming)
	assert.Empty(t, m.partial)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello there", history[1].Text)
	assert.False(t, history[1].Cancelled)
}

func TestModel_SubmitIgnoresBlankInput(t *testing.T) {
	m := newTestModel(t, newFakeSession())
	m.input.SetValue("   ")

	m, cmd := updateCmd(t, m, enterKey)
	assert.Nil(t, cmd)
	assert.False(t, m.streaming)
	assert.Empty(t, m.History())
}

func TestModel_SubmitWhileStreaming(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)
	m, _ = startExchange(t, m, session, "first")

	m.input.SetValue("second")
	m, cmd := updateCmd(t, m, enterKey)
	assert.Nil(t, cmd)
	assert.Equal(t, "second", m.input.Value())
	assert.Equal(t, "a reply is still streaming", m.status)
	assert.Len(t, m.History(), 1)
}

func TestModel_AltEnterInsertsNewline(t *testing.T) {
	m := newTestModel(t, newFakeSession())
	m.input.SetValue("line one")

	m = update(t, m, altEnterKey)
	assert.Equal(t, "line one\n", m.input.Value())
	assert.False(t, m.streaming)
}

func TestModel_StreamStartFails(t *testing.T) {
	session := newFakeSession()
	session.streamErr = chat.ErrNotConnected
	m := newTestModel(t, session)

	m.input.SetValue("hello")
	m, _ = updateCmd(t, m, enterKey)
	m = update(t, m, m.sendCmd("hello")())

	assert.False(t, m.streaming)
	assert.ErrorIs(t, m.err, chat.ErrNotConnected)
	assert.Contains(t, m.bannerView(), "not connected")
}

func TestModel_StopGeneration(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)
	m, wait := startExchange(t, m, session, "tell me a story")

	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: "Once upon"}
	m, wait = updateCmd(t, m, wait())

	m, stop := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, stop)
	m = update(t, m, stop())
	assert.Equal(t, 1, session.stops)

	session.events <- chat.StreamEvent{Kind: chat.EventDone, Text: "Once upon", Cancelled: true}
	m = update(t, m, wait())

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, "Once upon", history[1].Text)
	assert.True(t, history[1].Cancelled)
	assert.Equal(t, "generation stopped", m.status)
	assert.Contains(t, m.viewport.View(), "(stopped)")
}

func TestModel_StopNotConnected(t *testing.T) {
	session := newFakeSession()
	session.controlErr = chat.ErrNotConnected
	m := newTestModel(t, session)

	_, stop := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m = update(t, m, stop())
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "ctrl+r")
}

func TestModel_ClearConversation(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)
	m, wait := startExchange(t, m, session, "hi")

	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Nil(t, cmd)
	assert.Equal(t, "stop the reply before clearing", m.status)
	assert.Len(t, m.History(), 1)

	session.events <- chat.StreamEvent{Kind: chat.EventDone, Text: "hey"}
	m = update(t, m, wait())
	require.Len(t, m.History(), 2)

	m, cmd = updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	assert.Len(t, m.History(), 2)
	m = update(t, m, cmd())
	assert.Equal(t, 1, session.clears)
	assert.Equal(t, "conversation cleared", m.status)
	assert.Empty(t, m.History())
	assert.NotContains(t, m.viewport.View(), "hey")
}

func TestModel_ClearConversationFailureKeepsHistory(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)
	m, wait := startExchange(t, m, session, "hi")
	session.events <- chat.StreamEvent{Kind: chat.EventDone, Text: "hey"}
	m = update(t, m, wait())

	session.controlErr = chat.ErrNotConnected
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "ctrl+r")
	assert.Len(t, m.History(), 2)
	assert.Contains(t, m.viewport.View(), "hey")
}

func TestModel_ScrolledBackViewportIsNotPulledDown(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)
	m, wait := startExchange(t, m, session, "count")

	long := strings.Repeat("line\n\n", 100)
	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: long}
	m, wait = updateCmd(t, m, wait())
	require.True(t, m.viewport.AtBottom())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyPgUp})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyPgUp})
	require.False(t, m.viewport.AtBottom())
	offset := m.viewport.YOffset

	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: long + "more"}
	m, wait = updateCmd(t, m, wait())
	assert.False(t, m.viewport.AtBottom())
	assert.Equal(t, offset, m.viewport.YOffset)

	m.viewport.GotoBottom()
	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: long + "more and more"}
	m, _ = updateCmd(t, m, wait())
	assert.True(t, m.viewport.AtBottom())
}

func TestModel_StreamError(t *testing.T) {
	session := newFakeSession()
	m := newTestModel(t, session)
	m, wait := startExchange(t, m, session, "hi")

	session.events <- chat.StreamEvent{Kind: chat.EventChunk, Text: "par"}
	m, wait = updateCmd(t, m, wait())

	dropped := &chat.ConnectionError{Op: "read", Addr: "ws://mock/ws", Err: errors.New("EOF")}
	session.events <- chat.StreamEvent{Kind: chat.EventError, Text: "par", Err: dropped}
	m = update(t, m, wait())

	assert.False(t, m.streaming)
	assert.ErrorIs(t, m.err, dropped)
	require.Len(t, m.History(), 2)
	assert.Equal(t, "par", m.History()[1].Text)
	assert.Contains(t, m.bannerView(), "error:")
}

func TestModel_CopyLast(t *testing.T) {
	var copied []string
	clip := WithClipboard(func(s string) error {
		copied = append(copied, s)
		return nil
	})

	session := newFakeSession()
	m := newTestModel(t, session, clip)

	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Nil(t, cmd)
	assert.Equal(t, "nothing to copy", m.status)

	m.history = []Message{
		{Role: RoleUser, Text: "code please"},
		{Role: RoleAssistant, Text: "Sure:\n```go\nfmt.Println(1)\n```\nand\n```sh\nls\n```\n"},
	}
	m, cmd = updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.NotNil(t, cmd)
	m = update(t, m, cmd())
	assert.Equal(t, []string{"ls\n"}, copied)
	assert.Equal(t, "copied code block", m.status)

	m.history = append(m.history, Message{Role: RoleAssistant, Text: "plain answer"})
	_, cmd = updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	m = update(t, m, cmd())
	assert.Equal(t, []string{"ls\n", "plain answer"}, copied)
	assert.Equal(t, "copied reply", m.status)
}

func TestModel_Reconnect(t *testing.T) {
	session := newFakeSession()
	session.state = chat.StateDisconnected
	m := newTestModel(t, session)
	assert.Contains(t, m.View(), "disconnected")

	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, 1, session.connects)
	assert.Equal(t, chat.StateConnected, m.state)
	assert.Equal(t, "connected", m.status)
	assert.NoError(t, m.err)

	session.connectErr = &chat.ConnectionError{Op: "dial", Addr: "ws://mock/ws", Err: errors.New("refused")}
	_, cmd = updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	m = update(t, m, cmd())
	assert.Error(t, m.err)
}

func TestModel_StateMsg(t *testing.T) {
	m := newTestModel(t, newFakeSession())

	drop := errors.New("connection reset")
	m = update(t, m, StateMsg{State: chat.StateDisconnected, Err: drop})
	assert.Equal(t, chat.StateDisconnected, m.state)
	assert.ErrorIs(t, m.err, drop)
	assert.Contains(t, m.headerView(), "disconnected")

	m = update(t, m, StateMsg{State: chat.StateConnected})
	assert.Contains(t, m.headerView(), "connected")
}

func TestModel_SpinnerOnlyWhileWaiting(t *testing.T) {
	m := newTestModel(t, newFakeSession())

	_, cmd := updateCmd(t, m, spinner.TickMsg{})
	assert.Nil(t, cmd)
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t, newFakeSession())

	_, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModel_Resize(t *testing.T) {
	m := newTestModel(t, newFakeSession())
	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 30})

	assert.Equal(t, 60, m.viewport.Width)
	assert.Equal(t, 30-(1+1+m.input.Height()+2+1), m.viewport.Height)
}
