package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/ppiankov/sitefetch/internal/store"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyKind   string
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent fetch runs from the archive",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "only show runs of this kind: bluesky, youtube")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	runs, err := db.RecentRuns(cmd.Context(), historyLimit, historyKind)
	if err != nil {
		return fmt.Errorf("recent runs: %w", err)
	}

	switch historyFormat {
	case "json":
		return printHistoryJSON(os.Stdout, runs)
	case "terminal", "":
		if len(runs) == 0 {
			fmt.Fprintln(os.Stdout, "No runs recorded yet. Run 'sitefetch run' first.")
			return nil
		}
		printHistory(os.Stdout, runs, time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}
}

func printHistory(w io.Writer, runs []store.Run, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Started", "Kind", "Target", "Items", "Requests", "Stop", "Took", "Status"})
	for _, r := range runs {
		took := "-"
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Kind,
			r.Target,
			humanize.Comma(int64(r.Items)),
			r.Requests,
			r.StopReason,
			took,
			runStatus(r),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func runStatus(r store.Run) string {
	switch {
	case r.Error != "":
		return "error: " + r.Error
	case r.FinishedAt.IsZero():
		return "unfinished"
	default:
		return "ok"
	}
}

type historyRun struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Target     string     `json:"target"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Items      int        `json:"items"`
	Requests   int        `json:"requests"`
	StopReason string     `json:"stop_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func printHistoryJSON(w io.Writer, runs []store.Run) error {
	out := struct {
		Runs []historyRun `json:"runs"`
	}{Runs: make([]historyRun, 0, len(runs))}

	for _, r := range runs {
		hr := historyRun{
			ID:         r.ID,
			Kind:       r.Kind,
			Target:     r.Target,
			StartedAt:  r.StartedAt,
			Items:      r.Items,
			Requests:   r.Requests,
			StopReason: r.StopReason,
			Error:      r.Error,
		}
		if !r.FinishedAt.IsZero() {
			finished := r.FinishedAt
			hr.FinishedAt = &finished
		}
		out.Runs = append(out.Runs, hr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
