package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/devopin/agent/pkg/control"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const maxLines = 5000

// Model is the live log stream viewer.
type Model struct {
	client *control.Client
	req    control.Request

	streamID string
	frames   <-chan control.Response
	closer   func()

	vp     viewport.Model
	lines  []string
	follow bool
	ended  bool
	errMsg string

	width  int
	height int
	ready  bool
}

// New creates a stream viewer for the given logs_stream request.
func New(client *control.Client, req control.Request) Model {
	return Model{
		client: client,
		req:    req,
		follow: true,
	}
}

type streamStartedMsg struct {
	ack    control.Response
	frames <-chan control.Response
	closer func()
}

type frameMsg control.Response

type streamClosedMsg struct{}

type streamErrMsg struct{ err error }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.startStream(),
		tea.SetWindowTitle("devopin logs"),
	)
}

func (m Model) startStream() tea.Cmd {
	return func() tea.Msg {
		ack, frames, closer, err := m.client.Stream(m.req)
		if err != nil {
			return streamErrMsg{err}
		}
		return streamStartedMsg{ack: ack, frames: frames, closer: closer}
	}
}

func waitForFrame(frames <-chan control.Response) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-frames
		if !ok {
			return streamClosedMsg{}
		}
		return frameMsg(frame)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-3)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - 3
		}
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		return m, nil

	case streamStartedMsg:
		m.streamID = msg.ack.StreamID
		m.frames = msg.frames
		m.closer = msg.closer
		return m, waitForFrame(m.frames)

	case frameMsg:
		if msg.Command == control.FrameStreamEnded {
			m.ended = true
			return m, waitForFrame(m.frames)
		}
		if line, ok := msg.Data.(string); ok {
			m.lines = append(m.lines, line)
			if len(m.lines) > maxLines {
				m.lines = m.lines[len(m.lines)-maxLines:]
			}
			if m.ready {
				m.vp.SetContent(strings.Join(m.lines, "\n"))
				if m.follow {
					m.vp.GotoBottom()
				}
			}
		}
		return m, waitForFrame(m.frames)

	case streamClosedMsg:
		m.ended = true
		return m, nil

	case streamErrMsg:
		m.errMsg = msg.err.Error()
		m.ended = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.teardown()
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow && m.ready {
				m.vp.GotoBottom()
			}
			return m, nil
		}
	}

	if m.ready {
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		// Manual scrolling implies the user wants to stop following.
		if !m.vp.AtBottom() {
			m.follow = false
		}
		return m, cmd
	}
	return m, nil
}

// teardown asks the server to stop the session, then drops the connection.
func (m *Model) teardown() {
	if m.streamID != "" {
		m.client.Do(control.Request{Command: control.CmdLogsStop, StreamID: m.streamID})
	}
	if m.closer != nil {
		m.closer()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "connecting..."
	}

	target := m.req.Service
	if target == "" {
		target = m.req.Path
	}
	title := titleStyle.Render(fmt.Sprintf(" devopin logs — %s ", target))

	var status string
	switch {
	case m.errMsg != "":
		status = errStyle.Render("error: " + m.errMsg)
	case m.ended:
		status = statusStyle.Render(fmt.Sprintf("stream ended — %d lines", len(m.lines)))
	case m.follow:
		status = statusStyle.Render(fmt.Sprintf("following — %d lines — %s", len(m.lines), m.streamID))
	default:
		status = statusStyle.Render(fmt.Sprintf("paused — %d lines — %s", len(m.lines), m.streamID))
	}
	help := helpStyle.Render("q quit · f follow · ↑/↓ scroll")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.vp.View(),
		status+"  "+help,
	)
}

// Run starts the viewer and blocks until the user quits.
func Run(client *control.Client, req control.Request) error {
	p := tea.NewProgram(New(client, req), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
