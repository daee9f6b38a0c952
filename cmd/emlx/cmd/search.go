package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/store"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <terms...>",
	Short: "Search indexed messages by subject and sender",
	Long: `Search the index for messages whose subject or sender contains every
term. Results are ordered newest first by date received.

Examples:
  emlx search invoice
  emlx search budget alice@example.com --limit 10
  emlx search report --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("empty search query")
		}

		st, err := openStore(false)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.Search(query, searchLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if searchJSON {
			return outputSearchResultsJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No messages found.")
			return nil
		}
		outputSearchResultsTable(out, results)
		return nil
	},
}

func outputSearchResultsTable(w io.Writer, results []store.Message) {
	rows := make([][]string, 0, len(results))
	for _, msg := range results {
		rows = append(rows, []string{
			formatDate(msg.DateReceived),
			truncate(msg.MailboxLabel, 20),
			truncate(msg.Sender, 30),
			truncate(msg.Subject, 50),
			formatSize(msg.ByteCount),
		})
	}
	writeTable(w, []string{"DATE", "MAILBOX", "FROM", "SUBJECT", "SIZE"}, rows)
	fmt.Fprintf(w, "\nShowing %d results\n", len(results))
}

func outputSearchResultsJSON(w io.Writer, results []store.Message) error {
	output := make([]map[string]any, len(results))
	for i, msg := range results {
		entry := map[string]any{
			"path":       msg.Path,
			"mailbox":    msg.MailboxLabel,
			"message_id": msg.MessageID,
			"subject":    msg.Subject,
			"from":       msg.Sender,
			"byte_count": msg.ByteCount,
			"flags":      msg.Flags,
		}
		if !msg.DateReceived.IsZero() {
			entry["date_received"] = msg.DateReceived.Format(time.RFC3339)
		}
		output[i] = entry
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	addDBFlag(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
