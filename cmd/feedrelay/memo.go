package main

import (
	"fmt"
	"os"
	"time"

	"feedrelay/pkg/logger"
	"feedrelay/pkg/memo"
	"feedrelay/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	memoSeconds int
	memoKeep    bool
)

// memoCmd represents the memo command
var memoCmd = &cobra.Command{
	Use:   "memo",
	Short: "Record and upload voice memos",
}

var memoRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice memo and upload it",
	Long: `Record audio with memo.record_command and upload the result.

The command template receives {seconds} and {file}. Recordings are capped at
memo.max_duration.`,
	Args: cobra.NoArgs,
	RunE: runMemoRecord,
}

var memoUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an existing audio file as a voice memo",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoUpload,
}

func init() {
	rootCmd.AddCommand(memoCmd)
	memoCmd.AddCommand(memoRecordCmd)
	memoCmd.AddCommand(memoUploadCmd)

	memoRecordCmd.Flags().IntVar(&memoSeconds, "seconds", 0, "recording length (default and cap: memo.max_duration)")
	memoRecordCmd.Flags().BoolVar(&memoKeep, "keep", false, "keep the recording after upload")
}

func runMemoRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	deps, err := newOffline(cfg)
	if err != nil {
		return err
	}

	rec := memo.NewRecorder(cfg.Memo.RecordCommand, cfg.Memo.MaxDuration, os.TempDir(), nil)
	ui.PrintInfo("Recording", fmt.Sprintf("up to %s", cfg.Memo.MaxDuration))
	path, err := rec.Record(cmd.Context(), time.Duration(memoSeconds)*time.Second)
	if err != nil {
		return err
	}
	if !memoKeep {
		defer os.Remove(path)
	}
	return upload(cmd, deps, path)
}

func runMemoUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	deps, err := newOffline(cfg)
	if err != nil {
		return err
	}
	return upload(cmd, deps, args[0])
}

func upload(cmd *cobra.Command, deps *offline, path string) error {
	up := memo.NewUploader(deps.api, deps.auth, deps.store, logger.GetLogger())
	resp, count, err := up.Upload(cmd.Context(), path)
	if err != nil {
		return err
	}
	ui.PrintSuccess("Voice memo uploaded")
	if resp != nil && resp.ID != "" {
		ui.PrintInfo("Memo", resp.ID)
	}
	ui.PrintInfo("Memos recorded", fmt.Sprint(count))
	return nil
}
