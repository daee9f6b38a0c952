package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/export"
)

var (
	exportOpts   scanFlags
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export [mail-dir]",
	Short: "Export Apple Mail mailboxes to Maildir or mbox",
	Long: `Export every parsed message under an Apple Mail directory to standard
mailboxes, one per Mail.app mailbox label.

maildir writes <out>/<label>/{cur,new,tmp} with read, answered, flagged,
deleted, draft and forwarded flags mapped to Maildir info flags.
mbox writes <out>/<label>.mbox.

Examples:
  emlx export --out ~/mail-export
  emlx export --format mbox --out /tmp/mbox ~/Library/Mail/V10`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName := cfg.Export.Format
		if cmd.Flags().Changed("format") {
			formatName = exportFormat
		}
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}
		dest := cfg.Export.OutputDir
		if cmd.Flags().Changed("out") {
			dest = exportOut
		}
		if dest == "" {
			return fmt.Errorf("no output directory: pass --out or set [export].output_dir")
		}

		opts := exportOpts.options(cmd)
		if opts.MetadataOnly {
			logger.Warn("metadata_only is ignored by export; messages are needed in full")
			opts.MetadataOnly = false
		}

		ex, err := export.New(format, dest)
		if err != nil {
			return err
		}
		root := mailDir(args)
		summary, scanErr := runScan(cmd, root, opts, ex)
		closeErr := ex.Close()

		out := cmd.OutOrStdout()
		if summary != nil && summary.ErrorCount() > 0 {
			fmt.Fprintf(out, "%d file(s) could not be parsed and were not exported.\n\n", summary.ErrorCount())
		}
		fmt.Fprintln(out, ex.Result().String())
		return errors.Join(scanErr, closeErr)
	},
}

func init() {
	exportOpts.register(exportCmd, false)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "maildir", "output format: maildir or mbox")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory (default: [export].output_dir)")
	rootCmd.AddCommand(exportCmd)
}
