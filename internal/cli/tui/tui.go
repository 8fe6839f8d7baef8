package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ccheshirecat/msgbus/internal/cli/client"
	"github.com/ccheshirecat/msgbus/internal/protocol/busws"
)

const (
	refreshInterval = 5 * time.Second
	maxLines        = 500
)

type frameMsg struct {
	frame client.Frame
	at    time.Time
}

type statsMsg struct {
	stats *client.Stats
}

type errMsg struct {
	err error
}

type streamClosedMsg struct {
	err error
}

type tickMsg struct{}

type keyMap struct {
	Quit   key.Binding
	Clear  key.Binding
	Up     key.Binding
	Down   key.Binding
	Follow key.Binding
}

var keys = keyMap{
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	Up:     key.NewBinding(key.WithKeys("pgup", "k"), key.WithHelp("pgup", "scroll up")),
	Down:   key.NewBinding(key.WithKeys("pgdown", "j"), key.WithHelp("pgdn", "scroll down")),
	Follow: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow")),
}

// Run launches the live message monitor for topics.
func Run(ctx context.Context, api *client.Client, topics []uint32) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(ctx, cancel, api, topics)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

type model struct {
	ctx     context.Context
	cancel  context.CancelFunc
	api     *client.Client
	topics  []uint32
	frames  chan frameMsg
	closed  chan error
	lines   []string
	stats   *client.Stats
	err     error
	ended   bool
	follow  bool
	ready   bool
	vp      viewport.Model
	width   int
	counter int
}

func newModel(ctx context.Context, cancel context.CancelFunc, api *client.Client, topics []uint32) model {
	return model{
		ctx:    ctx,
		cancel: cancel,
		api:    api,
		topics: topics,
		frames: make(chan frameMsg, 64),
		closed: make(chan error, 1),
		follow: true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		watchCmd(m.ctx, m.api, m.topics, m.frames, m.closed),
		waitFrameCmd(m.frames, m.closed),
		fetchStatsCmd(m.ctx, m.api),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Clear):
			m.lines = nil
			m.counter = 0
			m.refresh()
			return m, nil
		case key.Matches(msg, keys.Follow):
			m.follow = !m.follow
			m.refresh()
			return m, nil
		case key.Matches(msg, keys.Up):
			m.follow = false
			m.vp.HalfPageUp()
			return m, nil
		case key.Matches(msg, keys.Down):
			m.vp.HalfPageDown()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 3
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = height
		}
		m.refresh()
		return m, nil
	case frameMsg:
		m.counter++
		m.lines = append(m.lines, formatFrame(msg.frame, msg.at))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		m.refresh()
		return m, waitFrameCmd(m.frames, m.closed)
	case streamClosedMsg:
		m.ended = true
		m.err = msg.err
		return m, nil
	case statsMsg:
		m.stats = msg.stats
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	case tickMsg:
		return m, tea.Batch(tickCmd(), fetchStatsCmd(m.ctx, m.api))
	}
	return m, nil
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.vp.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	title := titleStyle.Render("msgbus :: " + describeTopics(m.topics))
	if !m.ready {
		return title + "\n  connecting...\n"
	}

	status := fmt.Sprintf("%d received", m.counter)
	if m.stats != nil {
		status += fmt.Sprintf(" | %d subscriptions | %d owners | %d sessions | %d sent",
			m.stats.Subscriptions, m.stats.Owners, len(m.stats.Sessions), m.stats.Traffic.Total)
	}
	if !m.follow {
		status += " | paused"
	}
	status += " | " + keys.Quit.Help().Key + " quit, " + keys.Clear.Help().Key + " clear, " + keys.Follow.Help().Key + " follow"

	footer := statusBarStyle.Width(m.width).Render(status)
	if m.err != nil {
		footer = errorStyle.Render("error: "+m.err.Error()) + "\n" + footer
	} else if m.ended {
		footer = errorStyle.Render("stream closed") + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, m.vp.View(), footer)
}

func formatFrame(f client.Frame, at time.Time) string {
	label := fmt.Sprintf("#%d", f.Topic)
	if f.Name != "" {
		label = f.Name + " " + label
	}
	payload := string(f.Payload)
	if payload == "" {
		payload = "null"
	}
	return timeStyle.Render(at.Format("15:04:05.000")) + " " + topicStyle.Render(label) + " " + payload
}

func describeTopics(topics []uint32) string {
	if len(topics) == 0 {
		return "all topics"
	}
	parts := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == busws.AnyTopic {
			return "all topics"
		}
		parts = append(parts, fmt.Sprintf("#%d", t))
	}
	return "topics " + strings.Join(parts, ", ")
}

func watchCmd(ctx context.Context, api *client.Client, topics []uint32, frames chan<- frameMsg, closed chan<- error) tea.Cmd {
	return func() tea.Msg {
		go func() {
			err := api.Watch(ctx, topics, func(f client.Frame) {
				select {
				case frames <- frameMsg{frame: f, at: time.Now()}:
				case <-ctx.Done():
				}
			})
			if ctx.Err() != nil {
				err = nil
			}
			closed <- err
		}()
		return nil
	}
}

func waitFrameCmd(frames <-chan frameMsg, closed <-chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case f := <-frames:
			return f
		case err := <-closed:
			return streamClosedMsg{err: err}
		}
	}
}

func fetchStatsCmd(parent context.Context, api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		stats, err := api.Stats(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return statsMsg{stats: stats}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}
