package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/store"
)

var (
	indexOpts      scanFlags
	indexBatchSize int
)

var indexCmd = &cobra.Command{
	Use:   "index [mail-dir]",
	Short: "Scan a Mail directory into the SQLite index",
	Long: `Scan an Apple Mail directory and record every parsed message in the
SQLite index: mailbox, path, Message-ID, subject, sender, flags and
date received. Re-running updates existing rows in place.

Examples:
  emlx index
  emlx index --db /tmp/mail.db ~/Library/Mail/V10
  emlx index --metadata-only ~/Library/Mail`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(true)
		if err != nil {
			return err
		}
		defer st.Close()

		root := mailDir(args)
		sink := store.NewSink(st, indexBatchSize)
		summary, scanErr := runScan(cmd, root, indexOpts.options(cmd), sink)
		// Keep whatever was parsed before an interruption.
		flushErr := sink.Flush()

		out := cmd.OutOrStdout()
		if summary != nil {
			fmt.Fprintf(out, "Mail directory: %s\nDatabase:       %s\n\n", root, st.Path())
			printSummary(out, summary)
			fmt.Fprintf(out, "\nIndexed %d message(s).\n", sink.Written())
		}
		if err := errors.Join(scanErr, flushErr); err != nil {
			return err
		}
		logger.Info("index complete", append(summary.LogAttrs(), "indexed", sink.Written())...)
		return nil
	},
}

func init() {
	indexOpts.register(indexCmd, true)
	addDBFlag(indexCmd)
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", store.DefaultBatchSize, "messages written per transaction")
	rootCmd.AddCommand(indexCmd)
}
