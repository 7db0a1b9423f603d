package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/table"

	"shellgw/internal/jobstore"
)

// updateTable rebuilds the job table rows, newest first.
func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.jobs))
	for i := len(m.jobs) - 1; i >= 0; i-- {
		rows = append(rows, m.jobRow(m.jobs[i]))
	}
	m.jobTable.SetRows(rows)
}

func (m *Model) jobRow(v *jobstore.JobView) table.Row {
	status := jobstore.StatusPending
	if v.Status != nil {
		status = *v.Status
	}

	statusSym := m.theme.StatusPending.Render("○")
	switch status {
	case jobstore.StatusRunning:
		statusSym = m.theme.StatusRunning.Render("◉")
	case jobstore.StatusCompleted:
		statusSym = m.theme.StatusCompleted.Render("●")
	case jobstore.StatusError:
		statusSym = m.theme.StatusError.Render("∅")
	}

	id := v.ID
	if len(id) > 8 {
		id = id[:8]
	}

	var command, msg string
	if v.Command != nil {
		command = *v.Command
	}
	if v.Msg != nil {
		msg = *v.Msg
	}

	return table.Row{statusSym, id, command, msg, jobDuration(v)}
}

// jobDuration formats elapsed time from the unix-millisecond timestamps;
// a still-running job measures against now.
func jobDuration(v *jobstore.JobView) string {
	if v.StartTime == nil {
		return "-"
	}
	start := time.UnixMilli(*v.StartTime)
	end := time.Now()
	if v.EndTime != nil {
		end = time.UnixMilli(*v.EndTime)
	}
	return end.Sub(start).Round(time.Millisecond).String()
}
