package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func renderHeader(health HealthState, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusCompleted.Render("HEALTHY")
	statusIcon := "✅"
	if !health.Connected {
		statusText = theme.StatusError.Render("CONNECTING")
		statusIcon = "🔌"
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusError.Render("DEGRADED")
		statusIcon = "⚠️"
	}

	uptime := time.Duration(health.UptimeSeconds) * time.Second
	uptimeStr := formatDuration(uptime)

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := " SHELLGW WATCH"

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Workers: %d  %s",
		statusIcon, statusText,
		uptimeStr,
		health.Workers,
		renderCounts(health.Counts, theme),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

// renderCounts summarizes the per-status job counts from /healthz.
func renderCounts(counts map[string]int, theme Theme) string {
	if len(counts) == 0 {
		return theme.Dim.Render("no jobs")
	}

	parts := make([]string, 0, 4)
	for _, status := range []string{"pending", "running", "completed", "error"} {
		n, ok := counts[status]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d", status, n))
	}
	return strings.Join(parts, "  ")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
