package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joebot/peerchat/internal/broker"
	"github.com/joebot/peerchat/internal/chat"
)

// --- message types ---

type identityMsg struct{ id string }

type identityLostMsg struct{}

type statusMsg chat.Status

type messageMsg chat.ChatMessage

type inputMsg bool

type alertMsg struct{ err error }

type copiedMsg struct{ err error }

// --- chat config ---

// ChatConfig holds display metadata and settings for the chat TUI.
type ChatConfig struct {
	Broker          string
	TimeFormat      string
	AltScreen       bool
	MaxMessageBytes int
}

// Requester is the part of the controller the TUI drives.
type Requester interface {
	RequestBootstrap(label string)
	RequestConnect(remoteID string)
	RequestSend(text string)
}

// --- view adapter ---

type sender interface {
	Send(msg tea.Msg)
}

// programView turns controller effects into tea messages. Send only blocks
// until the program's event loop takes the message, and returns at once
// after the program exits.
type programView struct {
	p sender
}

func (v *programView) IdentityReady(id string) { v.p.Send(identityMsg{id: id}) }
func (v *programView) IdentityLost() { v.p.Send(identityLostMsg{}) }
func (v *programView) StatusChanged(s chat.Status) { v.p.Send(statusMsg(s)) }
func (v *programView) MessageAppended(m chat.ChatMessage) { v.p.Send(messageMsg(m)) }
func (v *programView) InputEnabled(on bool) { v.p.Send(inputMsg(on)) }
func (v *programView) Alert(err error) { v.p.Send(alertMsg{err: err}) }

// --- interactive chat model ---

type phase int

const (
	phaseLabel phase = iota
	phaseChat
)

type focus int

const (
	focusPeer focus = iota
	focusMessage
)

type chatModel struct {
	label    textinput.Model
	peer     textinput.Model
	message  textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	ctrl Requester
	copy func(string) error

	phase   phase
	focus   focus
	dialing bool
	showID  bool

	id        string
	status    chat.Status
	recipient string
	inputOn   bool
	messages  []chat.ChatMessage
	alert     string
	notice    string

	ready  bool
	width  int
	height int
	broker string
}

func newInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 0
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(Accent)
	return ti
}

func newChatModel(ctrl Requester, cfg ChatConfig) chatModel {
	label := newInput("your number, e.g. 555-1234")
	label.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Accent)

	return chatModel{
		label:   label,
		peer:    newInput("peer ID"),
		message: newInput("Type a message..."),
		spinner: sp,
		ctrl:    ctrl,
		copy:    clipboard.WriteAll,
		broker:  cfg.Broker,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// header, divider, viewport, divider, peer line, message line, status bar
		vpHeight := msg.Height - 6
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.label.Width = 30
		m.peer.Width = msg.Width/2 - 10
		m.message.Width = msg.Width - 4
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.showID {
			return m.updateIDModal(msg)
		}
		if m.phase == phaseLabel {
			return m.updateLabel(msg)
		}
		return m.updateChat(msg)

	case identityMsg:
		m.phase = phaseChat
		m.id = msg.id
		m.dialing = false
		m.showID = true
		m.alert = ""
		m.label.Blur()
		return m, nil

	case identityLostMsg:
		m.phase = phaseLabel
		m.id = ""
		m.showID = false
		m.dialing = false
		m.inputOn = false
		m.focus = focusPeer
		m.peer.Blur()
		m.message.Blur()
		m.message.SetValue("")
		return m, m.label.Focus()

	case statusMsg:
		m.status = chat.Status(msg)
		if m.status.Connected {
			m.recipient = m.status.RemoteID
		}
		return m, nil

	case inputMsg:
		m.inputOn = bool(msg)
		if m.inputOn {
			cmd := m.setFocus(focusMessage)
			return m, cmd
		}
		m.message.SetValue("")
		cmd := m.setFocus(focusPeer)
		return m, cmd

	case messageMsg:
		m.messages = append(m.messages, chat.ChatMessage(msg))
		if m.ready {
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
		}
		return m, nil

	case alertMsg:
		m.dialing = false
		m.notice = ""
		if msg.err != nil {
			m.alert = strings.ToUpper(msg.err.Error())
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.alert = strings.ToUpper("copy failed: " + msg.err.Error())
		} else {
			m.notice = "ID COPIED TO CLIPBOARD"
		}
		return m, nil

	case spinner.TickMsg:
		if m.dialing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	return m.routeInput(msg)
}

func (m chatModel) updateLabel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		return m.routeInput(msg)
	}
	if m.dialing {
		return m, nil
	}
	m.alert = ""
	m.dialing = true
	m.ctrl.RequestBootstrap(m.label.Value())
	return m, m.spinner.Tick
}

func (m chatModel) updateIDModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.showID = false
		cmd := m.setFocus(m.focus)
		return m, cmd
	case tea.KeyRunes:
		if string(msg.Runes) == "c" {
			id, copyFn := m.id, m.copy
			return m, func() tea.Msg {
				return copiedMsg{err: copyFn(id)}
			}
		}
	}
	return m, nil
}

func (m chatModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		if m.focus == focusPeer && m.inputOn {
			cmd := m.setFocus(focusMessage)
			return m, cmd
		}
		cmd := m.setFocus(focusPeer)
		return m, cmd
	case tea.KeyEnter:
		m.alert = ""
		m.notice = ""
		if m.focus == focusPeer {
			m.ctrl.RequestConnect(m.peer.Value())
			return m, nil
		}
		if !m.inputOn {
			return m, nil
		}
		text := m.message.Value()
		m.ctrl.RequestSend(text)
		if strings.TrimSpace(text) != "" {
			m.message.SetValue("")
		}
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m.routeInput(msg)
}

// routeInput hands remaining events to whichever input has focus.
func (m chatModel) routeInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.showID:
	case m.phase == phaseLabel:
		if !m.dialing {
			m.label, cmd = m.label.Update(msg)
		}
	case m.focus == focusPeer:
		m.peer, cmd = m.peer.Update(msg)
	case m.inputOn:
		m.message, cmd = m.message.Update(msg)
	}
	return m, cmd
}

func (m *chatModel) setFocus(f focus) tea.Cmd {
	if f == focusMessage && !m.inputOn {
		f = focusPeer
	}
	m.focus = f
	if m.showID || m.phase == phaseLabel {
		return nil
	}
	if f == focusPeer {
		m.message.Blur()
		return m.peer.Focus()
	}
	m.peer.Blur()
	return m.message.Focus()
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	switch {
	case m.phase == phaseLabel:
		return m.place(m.renderLabelModal())
	case m.showID:
		return m.place(m.renderIDModal())
	}

	divider := DimStyle.Render(strings.Repeat("─", m.width))

	var messageLine string
	if m.inputOn {
		messageLine = " " + m.message.View()
	} else {
		messageLine = DimStyle.Render(" message input disabled until a peer connects")
	}

	return m.renderHeader() + "\n" +
		divider + "\n" +
		m.viewport.View() + "\n" +
		divider + "\n" +
		m.renderPeerLine() + "\n" +
		messageLine + "\n" +
		m.renderStatusBar()
}

func (m chatModel) place(modal string) string {
	footer := m.renderStatusBar()
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, modal)
	return body + "\n" + footer
}

func (m chatModel) renderLabelModal() string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(fmt.Sprintf("%s peerchat", Logo)) + "\n\n")
	sb.WriteString(BoldStyle.Render("ENTER YOUR NUMBER") + "\n\n")
	sb.WriteString(m.label.View() + "\n\n")
	if m.dialing {
		sb.WriteString(m.spinner.View() + " Connecting to broker...")
	} else {
		sb.WriteString(DimStyle.Render("enter connect · ctrl+c quit"))
	}
	return ModalStyle.Render(sb.String())
}

func (m chatModel) renderIDModal() string {
	var sb strings.Builder
	sb.WriteString(BoldStyle.Render("YOUR PEER ID") + "\n\n")
	sb.WriteString(TitleStyle.Render(m.id) + "\n\n")
	sb.WriteString(DimStyle.Render("Share it with the person you want to chat with.") + "\n\n")
	sb.WriteString(DimStyle.Render("c copy · enter close"))
	return ModalStyle.Render(sb.String())
}

func (m chatModel) renderHeader() string {
	left := TitleStyle.Render(fmt.Sprintf(" %s peerchat", Logo)) +
		DimStyle.Render("  your ID ") + BoldStyle.Render(m.id)
	right := StatusStyle(m.status.Connected).Render(m.status.Text()) + " "

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m chatModel) renderPeerLine() string {
	recipient := m.recipient
	if recipient == "" {
		recipient = "-"
	}
	return " " + m.peer.View() + DimStyle.Render("  TO: ") + BoldStyle.Render(recipient)
}

func (m chatModel) renderHistory() string {
	if len(m.messages) == 0 {
		return m.renderWelcome()
	}

	var sb strings.Builder
	for _, msg := range m.messages {
		sb.WriteString("\n")
		label := PeerLabel.Render(printable(msg.Sender))
		if msg.SenderIsSelf {
			label = SelfLabel.Render("You")
		}
		sb.WriteString("  " + label + " " + DimStyle.Render(msg.Time) + "\n")
		for _, line := range strings.Split(printable(msg.Text), "\n") {
			sb.WriteString("  " + line + "\n")
		}
	}
	return sb.String()
}

func (m chatModel) renderWelcome() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(RenderBanner())
	sb.WriteString("\n")
	sb.WriteString("  " + BoldStyle.Render("Getting started:") + "\n")
	sb.WriteString(DimStyle.Render("  1. Share your ID with a friend") + "\n")
	sb.WriteString(DimStyle.Render("  2. Type their ID and press enter, or wait for them to connect") + "\n")
	sb.WriteString(DimStyle.Render("  3. tab switches between the peer and message inputs") + "\n")
	return sb.String()
}

func (m chatModel) renderStatusBar() string {
	var left string
	switch {
	case m.alert != "":
		left = ErrStyle.Render(" " + m.alert)
	case m.notice != "":
		left = OkStyle.Render(" " + m.notice)
	default:
		left = DimStyle.Render(" enter submit · tab switch · ctrl+c quit")
	}
	right := DimStyle.Render(m.broker + " ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// printable drops control characters so remote text cannot drive the
// terminal.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// RunChat starts the interactive chat TUI on dialer and blocks until the
// operator quits or ctx is cancelled.
func RunChat(ctx context.Context, dialer broker.Dialer, cfg ChatConfig) error {
	view := &programView{}
	ctrl := chat.NewController(dialer, view, chat.Options{
		TimeFormat:      cfg.TimeFormat,
		MaxMessageBytes: cfg.MaxMessageBytes,
	})

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newChatModel(ctrl, cfg), opts...)
	view.p = p

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(runCtx) }()

	_, err := p.Run()
	cancel()
	runErr := <-done

	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
