package cmd

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/scan"
)

// scanFlags are the scan tuning flags shared by scan, index and export.
// Unset flags fall back to the [scan] config section.
type scanFlags struct {
	workers        int
	metadataOnly   bool
	maxFileMB      int64
	filesPerSecond float64
}

func (f *scanFlags) register(cmd *cobra.Command, metadataFlag bool) {
	cmd.Flags().IntVarP(&f.workers, "workers", "j", 0, "parallel parsers (default: number of CPUs)")
	cmd.Flags().Int64Var(&f.maxFileMB, "max-file-mb", 128, "skip files larger than this many MiB (-1 disables)")
	cmd.Flags().Float64Var(&f.filesPerSecond, "rate", 0, "limit reads to this many files per second (0 is unlimited)")
	if metadataFlag {
		cmd.Flags().BoolVar(&f.metadataOnly, "metadata-only", false, "skip reading and parsing MIME messages")
	}
}

func (f *scanFlags) options(cmd *cobra.Command) scan.Options {
	opts := scan.Options{
		Workers:        cfg.Scan.Workers,
		MetadataOnly:   cfg.Scan.MetadataOnly,
		MaxFileBytes:   cfg.MaxFileBytes(),
		FilesPerSecond: cfg.Scan.FilesPerSecond,
		Logger:         logger,
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		opts.Workers = f.workers
	}
	if flags.Changed("metadata-only") {
		opts.MetadataOnly = f.metadataOnly
	}
	if flags.Changed("max-file-mb") {
		opts.MaxFileBytes = -1
		if f.maxFileMB >= 0 {
			opts.MaxFileBytes = f.maxFileMB << 20
		}
	}
	if flags.Changed("rate") {
		opts.FilesPerSecond = f.filesPerSecond
	}
	return opts
}

// mailDir returns the mail directory argument, or the configured one.
func mailDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Scan.MailDir
}

// runScan runs scan.Run with terminal progress when stderr is a TTY.
func runScan(cmd *cobra.Command, root string, opts scan.Options, sink scan.Sink) (*scan.Summary, error) {
	if p := stderrProgress(); p != nil {
		opts.Progress = p.Update
		defer p.Finish()
	}
	logger.Debug("scan starting", "root", root, "workers", opts.Workers, "metadata_only", opts.MetadataOnly)
	return scan.Run(cmd.Context(), root, opts, sink)
}

func printSummary(w io.Writer, s *scan.Summary) {
	rows := [][]string{
		{"Mailboxes", strconv.Itoa(s.Mailboxes)},
		{"Files", strconv.Itoa(s.Files)},
		{"Parsed", strconv.Itoa(s.Parsed)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Errors", strconv.Itoa(s.ErrorCount())},
	}
	kinds := make([]string, 0, len(s.Errors))
	for kind := range s.Errors {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		rows = append(rows, []string{"  " + kind, strconv.Itoa(s.Errors[kind])})
	}
	rows = append(rows,
		[]string{"Unread", strconv.Itoa(s.Unread)},
		[]string{"Flagged", strconv.Itoa(s.Flagged)},
		[]string{"Answered", strconv.Itoa(s.Answered)},
		[]string{"Junk", strconv.Itoa(s.Junk)},
		[]string{"Deleted", strconv.Itoa(s.Deleted)},
		[]string{"MIME bytes", formatSize(s.MIMEBytes)},
		[]string{"Duration", formatDuration(s.Duration)},
	)
	writeTable(w, []string{"METRIC", "VALUE"}, rows)
}

var scanOpts scanFlags

var scanCmd = &cobra.Command{
	Use:   "scan [mail-dir]",
	Short: "Parse every .emlx file under a Mail directory",
	Long: `Parse every .emlx file under an Apple Mail directory and print a
summary of files, parse errors by kind, and flag counts.

The directory defaults to [scan].mail_dir (~/Library/Mail). It may also be
a single .mbox directory. Nothing is written.

Examples:
  emlx scan
  emlx scan --metadata-only ~/Library/Mail/V10
  emlx scan -j 2 ~/Downloads/Mail/Mailboxes/Archive.mbox`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := mailDir(args)
		summary, err := runScan(cmd, root, scanOpts.options(cmd), nil)
		if summary != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Mail directory: %s\n\n", root)
			printSummary(cmd.OutOrStdout(), summary)
		}
		if err != nil {
			return err
		}
		logger.Info("scan complete", summary.LogAttrs()...)
		return nil
	},
}

func init() {
	scanOpts.register(scanCmd, true)
	rootCmd.AddCommand(scanCmd)
}
