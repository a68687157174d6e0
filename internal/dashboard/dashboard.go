// Package dashboard renders a terminal view of the session pool by
// polling a running service's status endpoint.
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/webpilot/webpilot-go/internal/types"
)

const pollInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245"))

	healthyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	unhealthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

type statusMsg struct {
	status *types.PoolStatus
	err    error
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	baseURL string
	client  *http.Client

	status    *types.PoolStatus
	fetchErr  error
	updatedAt time.Time
}

// NewModel creates a dashboard polling the service at baseURL.
func NewModel(baseURL string) Model {
	return Model{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch, tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, tick())
	case statusMsg:
		m.status = msg.status
		m.fetchErr = msg.err
		m.updatedAt = time.Now()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("webpilot sessions"))
	b.WriteString("\n\n")

	if m.fetchErr != nil {
		b.WriteString(unhealthyStyle.Render("unreachable: " + m.fetchErr.Error()))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.baseURL))
		b.WriteString("\n\n" + dimStyle.Render("q quit · r refresh"))
		return b.String()
	}
	if m.status == nil {
		return b.String() + dimStyle.Render("loading...")
	}

	backendState := unhealthyStyle.Render("down")
	if m.status.BackendAlive {
		backendState = healthyStyle.Render("up")
	}
	capacity := "unlimited"
	if m.status.Capacity > 0 {
		capacity = fmt.Sprintf("%d/%d", len(m.status.Sessions), m.status.Capacity)
	}
	b.WriteString(fmt.Sprintf("backend %s · sessions %s · updated %s\n\n",
		backendState, capacity, m.updatedAt.Format("15:04:05")))

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-20s %-8s %-10s %s", "CLIENT", "STATE", "IDLE", "URL")))
	b.WriteString("\n")
	if len(m.status.Sessions) == 0 {
		b.WriteString(dimStyle.Render("no active sessions"))
		b.WriteString("\n")
	}
	for _, s := range m.status.Sessions {
		state := unhealthyStyle.Render("dead")
		if s.Healthy {
			state = healthyStyle.Render("live")
		}
		idle := time.Since(s.LastActivity).Round(time.Second)
		url := s.CurrentURL
		if url == "" {
			url = dimStyle.Render("about:blank")
		}
		b.WriteString(fmt.Sprintf("%-20s %-8s %-10s %s\n", truncate(s.ClientID, 20), state, idle, url))
	}

	b.WriteString("\n" + dimStyle.Render("q quit · r refresh"))
	return b.String()
}

// fetch pulls /api/status once.
func (m Model) fetch() tea.Msg {
	resp, err := m.client.Get(m.baseURL + "/api/status")
	if err != nil {
		return statusMsg{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusMsg{err: fmt.Errorf("status endpoint returned %d", resp.StatusCode)}
	}

	var envelope struct {
		Success bool             `json:"success"`
		Data    types.PoolStatus `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return statusMsg{err: err}
	}
	return statusMsg{status: &envelope.Data}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// Run starts the dashboard against the service at baseURL.
func Run(baseURL string) error {
	p := tea.NewProgram(NewModel(baseURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
