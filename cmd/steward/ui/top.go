package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// RefreshFunc produces the current dashboard as markdown. It is called
// from the initial load, the refresh key, and the periodic tick.
type RefreshFunc func() (string, error)

// Message types for the top view
type (
	refreshedMsg struct {
		markdown string
		err      error
	}
	refreshTickMsg time.Time
)

// TopModel is the live full-screen dashboard: a scrolling viewport over
// the rendered markdown report, refreshed on an interval.
type TopModel struct {
	viewport viewport.Model
	spinner  spinner.Model
	styles   Styles
	renderer *glamour.TermRenderer

	workspace string
	refresh   RefreshFunc
	interval  time.Duration

	markdown    string // last raw markdown, re-rendered on resize
	lastRefresh time.Time
	loading     bool
	err         error

	width  int
	height int
	ready  bool
}

// NewTopModel creates the live dashboard view over a refresh source.
func NewTopModel(workspace string, refresh RefreshFunc, interval time.Duration, styles Styles) TopModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	if interval <= 0 {
		interval = 5 * time.Second
	}

	return TopModel{
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		workspace: workspace,
		refresh:   refresh,
		interval:  interval,
		loading:   true,
	}
}

func (m TopModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.refreshCmd(),
		m.tickCmd(),
	)
}

// refreshCmd gathers a fresh dashboard off the update loop.
func (m TopModel) refreshCmd() tea.Cmd {
	refresh := m.refresh
	return func() tea.Msg {
		md, err := refresh()
		return refreshedMsg{markdown: md, err: err}
	}
}

// tickCmd schedules the next periodic refresh.
func (m TopModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m TopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.refreshCmd())
			}
			return m, nil
		case "g":
			m.viewport.GotoTop()
			return m, nil
		case "G":
			m.viewport.GotoBottom()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}

		// Re-render markdown at the new width
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-8),
		)
		m.viewport.SetContent(m.renderMarkdown())
		return m, nil

	case refreshedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.markdown = msg.markdown
			m.lastRefresh = time.Now()
			m.viewport.SetContent(m.renderMarkdown())
		}
		return m, nil

	case refreshTickMsg:
		cmds := []tea.Cmd{m.tickCmd()}
		if !m.loading {
			m.loading = true
			cmds = append(cmds, m.spinner.Tick, m.refreshCmd())
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if m.loading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
		return m, nil
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

// renderMarkdown renders the stored dashboard markdown for the viewport.
func (m TopModel) renderMarkdown() string {
	if m.renderer != nil && m.markdown != "" {
		rendered, err := m.renderer.Render(m.markdown)
		if err == nil {
			return rendered
		}
	}
	return m.markdown
}

func (m TopModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

func (m TopModel) renderHeader() string {
	title := m.styles.Header.Render(" 🧹 steward top ")

	var status string
	switch {
	case m.loading:
		status = m.styles.Spinner.Render(m.spinner.View()) + m.styles.Warning.Render("refreshing")
	case m.err != nil:
		status = m.styles.Error.Render("● " + m.err.Error())
	default:
		status = m.styles.Success.Render("● live")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		"  ",
		status,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.Muted.Render(fmt.Sprintf(" 📁 %s", m.workspace)),
		m.styles.RenderDivider(m.width),
	)
}

func (m TopModel) renderFooter() string {
	help := "q quit · r refresh · ↑/↓ scroll · g/G top/bottom"
	stamp := ""
	if !m.lastRefresh.IsZero() {
		stamp = fmt.Sprintf("refreshed %s", m.lastRefresh.Format("15:04:05"))
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.styles.RenderDivider(m.width),
		m.styles.Footer.Render(help+"   "+stamp),
	)
}
