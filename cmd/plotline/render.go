package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"plotline/internal/api"
)

// colorEnabled reports whether the command writes to an interactive terminal.
func colorEnabled(cmd *cobra.Command) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func statusLabel(status string, color bool) string {
	if !color {
		return status
	}
	var colors text.Colors
	switch status {
	case "succeeded":
		colors = text.Colors{text.FgGreen}
	case "failed":
		colors = text.Colors{text.FgRed, text.Bold}
	case "canceled":
		colors = text.Colors{text.FgYellow}
	case "running":
		colors = text.Colors{text.FgCyan}
	default:
		colors = text.Colors{text.FgHiBlack}
	}
	return colors.Sprint(status)
}

func jobStatusLabel(job api.Job, color bool) string {
	label := statusLabel(job.Status, color)
	if job.Status == "succeeded" && job.PartialSuccess {
		label += " (partial)"
	}
	if job.CancelRequested && !job.Terminal() {
		label += " (cancel requested)"
	}
	return label
}

func renderJob(w io.Writer, job api.Job, color bool) {
	rows := [][2]string{
		{"Job", job.ID},
		{"Project", job.ProjectID},
		{"Type", job.Type},
		{"Stages", strings.Join(job.Stages, " → ")},
		{"Status", jobStatusLabel(job, color)},
		{"Current stage", dash(job.CurrentStage)},
		{"Progress", strconv.Itoa(job.Progress) + "%"},
		{"Images per scene", strconv.Itoa(job.Options.ImagesPerScene)},
		{"Style preset", dash(job.Options.StylePreset)},
		{"Language", dash(job.Options.Language)},
		{"Created", displayTime(job.CreatedAt)},
		{"Started", displayTime(job.StartedAt)},
		{"Finished", displayTime(job.FinishedAt)},
	}
	if job.ErrorMessage != "" {
		rows = append(rows, [2]string{"Error", job.ErrorMessage})
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%-17s %s\n", row[0]+":", row[1])
	}
}

func renderJobTable(jobs []api.Job, color bool) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			jobStatusLabel(job, color),
			dash(job.CurrentStage),
			strconv.Itoa(job.Progress) + "%",
			displayTime(job.CreatedAt),
			job.ErrorMessage,
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Stage", "Progress", "Created", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderItemTable(items []api.Item, color bool) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.Stage,
			item.RefID,
			statusLabel(item.Status, color),
			strconv.Itoa(item.Attempts),
			item.ErrorMessage,
		})
	}
	return renderTable(
		[]string{"Stage", "Ref", "Status", "Attempts", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// displayTime renders an API timestamp in local time.
func displayTime(value string) string {
	if value == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
