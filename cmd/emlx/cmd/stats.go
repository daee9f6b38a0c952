package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(false)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		counts, err := st.MailboxCounts()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\n", st.Path())
		fmt.Fprintf(out, "  Mailboxes:   %d\n", stats.MailboxCount)
		fmt.Fprintf(out, "  Messages:    %d\n", stats.MessageCount)
		fmt.Fprintf(out, "  Unread:      %d\n", stats.UnreadCount)
		fmt.Fprintf(out, "  Flagged:     %d\n", stats.FlaggedCount)
		fmt.Fprintf(out, "  Junk:        %d\n", stats.JunkCount)
		fmt.Fprintf(out, "  MIME bytes:  %s\n", formatSize(stats.MIMEBytes))
		fmt.Fprintf(out, "  Size:        %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))

		if len(counts) == 0 {
			return nil
		}
		rows := make([][]string, 0, len(counts))
		for _, c := range counts {
			rows = append(rows, []string{
				truncate(c.Label, 60),
				strconv.FormatInt(c.Messages, 10),
				strconv.FormatInt(c.Unread, 10),
			})
		}
		fmt.Fprintln(out)
		writeTable(out, []string{"MAILBOX", "MESSAGES", "UNREAD"}, rows)
		return nil
	},
}

func init() {
	addDBFlag(statsCmd)
	rootCmd.AddCommand(statsCmd)
}
