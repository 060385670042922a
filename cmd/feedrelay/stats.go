package main

import (
	"fmt"
	"strconv"
	"time"

	"feedrelay/pkg/models"
	"feedrelay/pkg/state"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cumulative sync statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	store, err := state.Open(cfg.State.Directory, nil)
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), statsTable(stats))
	return nil
}

func statsTable(s models.SyncStats) string {
	last := "never"
	if !s.LastRunAt.IsZero() {
		last = s.LastRunAt.Local().Format(time.RFC1123)
	}
	rate := "-"
	if n := s.TotalSuccessful + s.TotalFailed; n > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(s.TotalSuccessful)/float64(n)*100)
	}

	rows := [][]string{
		{"Runs", strconv.Itoa(s.TotalRuns)},
		{"Cancelled runs", strconv.Itoa(s.CancelledRuns)},
		{"Failed runs", strconv.Itoa(s.FailedRuns)},
		{"Posts collected", strconv.Itoa(s.TotalCollected)},
		{"Posts delivered", strconv.Itoa(s.TotalSuccessful)},
		{"Deliveries failed", strconv.Itoa(s.TotalFailed)},
		{"Success rate", rate},
		{"Voice memos", strconv.Itoa(s.MemoCount)},
		{"Last run", last},
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
