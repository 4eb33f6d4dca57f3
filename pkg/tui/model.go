// Package tui renders the cohort snapshot SPEC_FULL.md section 9 asks
// `orderly status` to show, polling pkg/status's status and snapshot
// files instead of subscribing to a live event bus. Grounded on the
// teacher's pkg/tui/models.RootModel/DashboardModel shape (Init/Update/View,
// a periodic tick driving refreshes) but with the teacher's pub/sub
// StateWatcher replaced by a direct poll: orderly status is a read-only
// viewer of a file another process already writes, not a participant in
// the cohort's own event bus.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/orderly/pkg/diag"
	"github.com/go-go-golems/orderly/pkg/status"
	"github.com/go-go-golems/orderly/pkg/tui/styles"
	"github.com/go-go-golems/orderly/pkg/tui/widgets"
)

type tickMsg struct{}

type refreshedMsg struct {
	phase    status.Phase
	snap     status.Snapshot
	exitInfo map[string]*diag.ExitInfo
	err      error
}

// StatusModel is the bubbletea model behind `orderly status --watch`. It
// is also used headless (Refreshed + View, no tea.Program) for the
// non-watch one-shot print.
type StatusModel struct {
	statusFilePath string
	snapshotPath   string
	logDir         string
	interval       time.Duration

	width, height int
	phase         status.Phase
	snap          status.Snapshot
	exitInfo      map[string]*diag.ExitInfo
	err           error
	startedAt     time.Time
}

// NewStatusModel builds a model polling statusFilePath (and its derived
// snapshot side-channel) every interval. logDir, if non-empty, is the same
// -log-dir the supervisor was started with; it lets the view find the
// per-service exit-info/log-tail files pkg/engine writes there, matching
// SPEC_FULL.md section 9's "status shows captured exit info". Pass "" when
// the supervisor ran without -log-dir — the table still works, just
// without that detail for services that are no longer running.
func NewStatusModel(statusFilePath string, logDir string, interval time.Duration) StatusModel {
	return StatusModel{
		statusFilePath: statusFilePath,
		snapshotPath:   status.SnapshotPath(statusFilePath),
		logDir:         logDir,
		interval:       interval,
		startedAt:      time.Now(),
	}
}

// Refreshed returns a copy of m with the latest status/snapshot read
// synchronously. Used directly by the non-watch one-shot command, and
// internally by the tea.Cmd the watch loop drives.
func (m StatusModel) Refreshed() StatusModel {
	phase, err := status.Read(m.statusFilePath)
	if err != nil {
		m.err = err
		return m
	}
	m.phase = phase
	m.err = nil
	if snap, err := status.ReadSnapshot(m.snapshotPath); err == nil {
		m.snap = snap
	}
	m.exitInfo = m.readExitInfo()
	return m
}

// readExitInfo loads the exit-info file for every service whose snapshot
// pid is 0 or no longer alive per diag.ProcessAlive. The snapshot keeps
// an exited RUN child's pid, so the ProcessAlive check is what keeps a
// service whose child has exited from being shown as still running.
func (m StatusModel) readExitInfo() map[string]*diag.ExitInfo {
	if m.logDir == "" {
		return nil
	}
	out := make(map[string]*diag.ExitInfo)
	for _, svc := range m.snap.Services {
		if svc.PID != 0 && diag.ProcessAlive(svc.PID) {
			continue
		}
		info, err := diag.ReadExitInfo(diag.ExitInfoPath(m.logDir, svc.Name))
		if err == nil {
			out[svc.Name] = info
		}
	}
	return out
}

func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tick(m.interval))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m StatusModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		r := m.Refreshed()
		return refreshedMsg{phase: r.phase, snap: r.snap, exitInfo: r.exitInfo, err: r.err}
	}
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		return m, nil
	case tea.KeyMsg:
		switch v.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tick(m.interval))
	case refreshedMsg:
		m.phase, m.snap, m.exitInfo, m.err = v.phase, v.snap, v.exitInfo, v.err
		return m, nil
	}
	return m, nil
}

func (m StatusModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	header := widgets.NewHeader("orderly status").
		WithStatus(styles.LifecycleIcon(m.snap.Phase), string(m.phase), m.phase == status.Running).
		WithUptime(time.Since(m.startedAt)).
		WithWidth(width)

	rows := make([]widgets.TableRow, 0, len(m.snap.Services))
	for _, svc := range m.snap.Services {
		pid := "-"
		if svc.PID != 0 {
			pid = fmt.Sprintf("%d", svc.PID)
		}
		extra := fmt.Sprintf("restarts=%d", svc.Restarts)
		if svc.PID != 0 {
			extra += fmt.Sprintf(" cpu=%.1f%% mem=%dMB", svc.CPUPercent, svc.MemoryMB)
		}
		rows = append(rows, widgets.ServiceRow(
			styles.LifecycleIcon(svc.Lifecycle),
			svc.Name,
			svc.Lifecycle,
			pid,
			extra,
		))
	}

	table := widgets.NewTable([]widgets.TableColumn{
		{Header: "NAME", Width: 18},
		{Header: "LIFECYCLE", Width: 14},
		{Header: "PID", Width: 8},
		{Header: "EXTRA", Width: 32},
	}).WithRows(rows).WithSize(width, 0)

	box := widgets.NewBox("services").WithContent(table.Render()).WithSize(width, 0)
	footer := widgets.NewFooter([]widgets.Keybind{{Key: "q", Label: "quit"}}).WithWidth(width)

	body := lipgloss.JoinVertical(lipgloss.Left, header.Render(), box.Render(), footer.Render())
	if exitBox := m.exitInfoBox(width); exitBox != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, exitBox)
	}
	if m.err != nil {
		body += "\n" + styles.DefaultTheme().StatusDead.Render(m.err.Error())
	}
	return body
}

// exitInfoBox renders one line per not-currently-running service whose
// exit info (and log tail) pkg/engine captured — empty string when no
// service has any (either everything is running, or -log-dir wasn't set).
func (m StatusModel) exitInfoBox(width int) string {
	if len(m.exitInfo) == 0 {
		return ""
	}
	theme := styles.DefaultTheme()
	var lines []string
	for _, svc := range m.snap.Services {
		info, ok := m.exitInfo[svc.Name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("%s:", svc.Name)
		if info.ExitCode != nil {
			line += fmt.Sprintf(" exit=%d", *info.ExitCode)
		}
		if info.Signal != "" {
			line += fmt.Sprintf(" signal=%s", info.Signal)
		}
		if info.Error != "" {
			line += fmt.Sprintf(" error=%q", info.Error)
		}
		if n := len(info.LogTail); n > 0 {
			line += fmt.Sprintf(" | %s", info.LogTail[n-1])
		}
		lines = append(lines, theme.StatusDead.Render(line))
	}
	if len(lines) == 0 {
		return ""
	}
	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return widgets.NewBox("last exit").WithContent(content).WithSize(width, 0).Render()
}
