package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/grixate/zipex/internal/archive"
	"github.com/grixate/zipex/internal/batch"
	"github.com/grixate/zipex/internal/config"
	"github.com/grixate/zipex/internal/extract"
	"github.com/grixate/zipex/internal/history"
	"github.com/grixate/zipex/internal/progress"
)

func main() {
	_ = godotenv.Load()
	logger := log.New(os.Stderr, "", log.LstdFlags)
	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(logger *log.Logger) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "zipex",
		Short: "zipex - ZIP archive extractor with progress, batching and safety checks",
		RunE:  func(cmd *cobra.Command, args []string) error { return cmd.Help() },
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "settings file path")

	root.AddCommand(inspectCmd(&configPath))
	root.AddCommand(extractCmd(&configPath, logger))
	root.AddCommand(batchCmd(&configPath, logger))
	root.AddCommand(historyCmd(&configPath, logger))
	root.AddCommand(configCmd(&configPath))
	return root
}

func resolvedConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := os.Getenv("ZIPEX_CONFIG"); env != "" {
		return env
	}
	fallback, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return fallback
}

func loadSettings(path string, logger *log.Logger) config.Settings {
	resolved := resolvedConfigPath(path)
	if resolved == "" {
		return config.Default()
	}
	settings, err := config.Load(resolved)
	if err != nil && logger != nil {
		logger.Printf("settings %s unusable, using defaults: %v", resolved, err)
	}
	return settings
}

func inspectCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Inspect a ZIP archive without extracting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(*configPath, nil)
			report, err := archive.InspectWithLimits(args[0], settings.Limits())
			if err != nil {
				return err
			}
			if asJSON {
				raw, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the raw report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report *archive.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Archive:      %s\n", report.Path)
	fmt.Fprintf(out, "Size:         %s on disk, %s uncompressed (%.1f%% saved)\n",
		humanize.Bytes(uint64(report.ArchiveSize)),
		humanize.Bytes(uint64(report.UncompressedSize)),
		report.CompressionRatio())
	fmt.Fprintf(out, "Files:        %s\n", humanize.Comma(int64(report.FileCount)))
	fmt.Fprintf(out, "Compression:  %s\n", report.Method)
	if report.Encrypted {
		fmt.Fprintln(out, "Encrypted:    yes (extraction unsupported)")
	}
	if report.RootFolder != "" {
		fmt.Fprintf(out, "Root folder:  %s\n", report.RootFolder)
	}
	for _, reason := range report.Bomb.Reasons {
		fmt.Fprintf(out, "WARNING:      possible decompression bomb: %s\n", reason)
	}
	for _, problem := range report.Problems {
		fmt.Fprintf(out, "Problem:      %s\n", problem)
	}
}

type extractFlags struct {
	dest    string
	policy  string
	flat    bool
	noPerms bool
	noTimes bool
	quiet   bool
}

func (f *extractFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.dest, "dest", "d", "", "destination directory (default from settings)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "conflict policy: ask, overwrite, skip, rename")
	cmd.Flags().BoolVar(&f.flat, "flat", false, "extract directly into the destination, no per-archive folder")
	cmd.Flags().BoolVar(&f.noPerms, "no-perms", false, "do not restore stored permission bits")
	cmd.Flags().BoolVar(&f.noTimes, "no-times", false, "do not restore stored modification times")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress the progress line")
}

func (f *extractFlags) buildTask(archivePath string, settings config.Settings) (*extract.Task, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, err
	}
	dest := f.dest
	if dest == "" {
		dest = settings.DefaultDestination
	}
	task := extract.NewTask(abs, dest)
	task.Policy = settings.ConflictPolicy
	task.CreateRootFolder = settings.CreateRootFolder && !f.flat
	task.PreservePermissions = settings.PreservePermissions && !f.noPerms
	task.PreserveTimestamps = settings.PreserveTimestamps && !f.noTimes
	task.BombLimits = settings.Limits()
	if f.policy != "" {
		policy, err := extract.ParsePolicy(f.policy)
		if err != nil {
			return nil, err
		}
		task.Policy = policy
	}
	return task, nil
}

func extractCmd(configPath *string, logger *log.Logger) *cobra.Command {
	var flags extractFlags
	cmd := &cobra.Command{
		Use:   "extract <archive>",
		Short: "Extract one ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(*configPath, logger)
			task, err := flags.buildTask(args[0], settings)
			if err != nil {
				return err
			}
			if task.Policy == extract.PolicyAsk {
				task.Resolver = &promptResolver{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := extract.NewEngine(logger)
			tracker := progress.NewTracker(0)
			started := false
			onProgress := func(t *extract.Task) {
				if flags.quiet {
					return
				}
				if !started {
					tracker.Start(t.TotalBytes)
					started = true
				}
				sample := tracker.Update(t.ExtractedBytes)
				fmt.Fprintf(cmd.OutOrStdout(), "\r%s / %s (%.1f%%)  %s  ETA %s   ",
					humanize.Bytes(uint64(t.ExtractedBytes)),
					humanize.Bytes(uint64(t.TotalBytes)),
					t.Progress(),
					progress.FormatSpeed(sample.AvgSpeed),
					progress.FormatETA(sample.ETA))
			}

			extractErr := engine.Extract(ctx, task, onProgress)
			if !flags.quiet {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			recordHistory(settings, logger, task)
			printTaskResult(cmd, task)
			return extractErr
		},
	}
	flags.register(cmd)
	return cmd
}

func batchCmd(configPath *string, logger *log.Logger) *cobra.Command {
	var flags extractFlags
	var jobs int
	cmd := &cobra.Command{
		Use:   "batch <archive>...",
		Short: "Extract several ZIP archives concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(*configPath, logger)

			tasks := make([]*extract.Task, 0, len(args))
			for _, arg := range args {
				task, err := flags.buildTask(arg, settings)
				if err != nil {
					return err
				}
				if task.Policy == extract.PolicyAsk {
					return errors.New("batch runs are non-interactive: pick --policy overwrite, skip or rename")
				}
				tasks = append(tasks, task)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			concurrency := settings.MaxConcurrent
			if jobs > 0 {
				concurrency = jobs
			}
			runner := batch.NewRunner(batch.Options{MaxConcurrent: concurrency, Logger: logger})
			results := runner.Run(ctx, tasks)

			failed := 0
			for _, task := range tasks {
				outcome := results[task.ID]
				recordHistory(settings, logger, task)
				marker := "ok"
				if !outcome.Success {
					marker = string(outcome.Status)
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s -> %s (%d files, %s)\n",
					marker, filepath.Base(task.ArchivePath), task.Destination,
					task.ExtractedFiles, humanize.Bytes(uint64(task.ExtractedBytes)))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d archives did not complete", failed, len(tasks))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "max concurrent extractions (default from settings)")
	return cmd
}

func printTaskResult(cmd *cobra.Command, task *extract.Task) {
	out := cmd.OutOrStdout()
	switch task.Status {
	case extract.StatusCompleted:
		if n := len(task.FailedMembers); n > 0 {
			fmt.Fprintf(out, "completed with %d failures: %d files, %s\n",
				n, task.ExtractedFiles, humanize.Bytes(uint64(task.ExtractedBytes)))
			for _, failure := range task.FailedMembers {
				fmt.Fprintf(out, "  %s: %s\n", failure.Path, failure.Reason)
			}
		} else {
			fmt.Fprintf(out, "completed: %d files, %s\n",
				task.ExtractedFiles, humanize.Bytes(uint64(task.ExtractedBytes)))
		}
	case extract.StatusCancelled:
		fmt.Fprintln(out, "cancelled")
	}
}

func recordHistory(settings config.Settings, logger *log.Logger, task *extract.Task) {
	if !task.Terminal() {
		return
	}
	path := settings.HistoryPath
	if path == "" {
		fallback, err := config.DefaultHistoryPath()
		if err != nil {
			return
		}
		path = fallback
	}
	store, err := history.Open(path, settings.HistoryLimit)
	if err != nil {
		logger.Printf("history unavailable: %v", err)
		return
	}
	defer store.Close()

	record := history.Record{
		ArchiveName:    filepath.Base(task.ArchivePath),
		ArchivePath:    task.ArchivePath,
		Destination:    task.Destination,
		ExtractedFiles: task.ExtractedFiles,
		ExtractedBytes: task.ExtractedBytes,
		FailedMembers:  len(task.FailedMembers),
		Success:        task.Status == extract.StatusCompleted,
	}
	if task.Err != nil {
		record.Error = task.Err.Error()
	}
	if err := store.Add(context.Background(), record); err != nil {
		logger.Printf("history write failed: %v", err)
	}
}

func historyCmd(configPath *string, logger *log.Logger) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent extractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(*configPath, logger)
			store, err := openHistory(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no extractions recorded")
				return nil
			}
			for _, record := range records {
				status := "ok"
				if !record.Success {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s %s -> %s (%d files, %s)\n",
					record.CreatedAt.Local().Format("2006-01-02 15:04"),
					status, record.ArchiveName, record.Destination,
					record.ExtractedFiles, humanize.Bytes(uint64(record.ExtractedBytes)))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "max records to show")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all extraction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(*configPath, logger)
			store, err := openHistory(settings)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Clear(cmd.Context())
		},
	}
	cmd.AddCommand(clear)
	return cmd
}

func openHistory(settings config.Settings) (*history.Store, error) {
	path := settings.HistoryPath
	if path == "" {
		fallback, err := config.DefaultHistoryPath()
		if err != nil {
			return nil, err
		}
		path = fallback
	}
	return history.Open(path, settings.HistoryLimit)
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(*configPath, nil)
			raw, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolvedConfigPath(*configPath)
			if path == "" {
				return errors.New("cannot determine settings path")
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settings written to %s\n", path)
			return nil
		},
	}
	cmd.AddCommand(initCmd)
	return cmd
}

// promptResolver implements the ask policy on a terminal. Each conflict
// is answered per occurrence; unparsable input skips the member.
type promptResolver struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *promptResolver) Resolve(existingPath string) extract.Decision {
	fmt.Fprintf(p.out, "exists: %s  [o]verwrite / [s]kip / [r]ename? ", existingPath)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return extract.DecisionSkip
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "o", "overwrite":
		return extract.DecisionOverwrite
	case "r", "rename":
		return extract.DecisionRename
	default:
		return extract.DecisionSkip
	}
}
