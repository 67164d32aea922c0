package main

import (
	"context"
	"fmt"
	"os"

	"github.com/buildfarm/stepwatch/internal/history"
)

// cmdHistory prints recently finished steps, newest first.
func cmdHistory() {
	a := setup(false)
	defer a.close()

	store, err := history.Open(a.cfg.HistoryPath())
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), historyN)
	if err != nil {
		fatal("%v", err)
	}

	reports := make([]report, len(records))
	for i, r := range records {
		exitCode := r.ExitCode
		reports[i] = report{
			ID:       r.ID.String(),
			Step:     r.Step,
			Log:      r.LogPath,
			Code:     r.Code,
			Text:     r.Excerpt,
			Duration: formatDuration(r.Duration()),
		}
		if exitCode >= 0 {
			reports[i].ExitCode = &exitCode
		}
	}
	if encode(os.Stdout, reports) {
		return
	}
	if len(records) == 0 {
		fmt.Println("no steps recorded")
		return
	}
	fmt.Printf("%-20s %-24s %-18s %6s %10s\n", "FINISHED", "STEP", "CODE", "EXIT", "DURATION")
	for i, r := range records {
		fmt.Printf("%-20s %-24s %-18s %6d %10s\n",
			r.Finished.Local().Format("2006-01-02 15:04:05"),
			truncate(r.Step, 24), r.Code, r.ExitCode, reports[i].Duration)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
