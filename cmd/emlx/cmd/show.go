package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/emlx"
)

var (
	showMetadataOnly bool
	showHeaders      bool
	showBody         bool
)

var showCmd = &cobra.Command{
	Use:   "show <file.emlx>",
	Short: "Dump a single .emlx file as JSON",
	Long: `Parse one .emlx or .partial.emlx file and print the byte count,
Message-ID, message: URL, decoded flags and property list as JSON.

Examples:
  emlx show 12345.emlx
  emlx show --headers --body 12345.emlx
  emlx show --metadata-only 12345.partial.emlx`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationNoConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := emlx.ReadFile(args[0], emlx.WithMetadataOnly(showMetadataOnly))
		if err != nil {
			return err
		}
		return writeRecordJSON(cmd.OutOrStdout(), rec, showHeaders, showBody)
	},
}

type headerJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type attachmentJSON struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Inline      bool   `json:"inline,omitempty"`
}

func writeRecordJSON(w io.Writer, rec *emlx.Record, headers, body bool) error {
	out := map[string]any{
		"byte_count": rec.ByteCount,
		"raw_flags":  rec.RawFlags,
		"flags":      rec.Flags,
		"plist":      rec.Plist,
	}
	if rec.MessageID != "" {
		out["message_id"] = rec.MessageID
		out["url"] = rec.URL
	}
	if msg := rec.Message; msg != nil {
		out["subject"] = msg.Subject
		if len(msg.From) > 0 {
			out["from"] = msg.From[0].Email
		}
		if len(msg.Cc) > 0 {
			cc := make([]string, 0, len(msg.Cc))
			for _, a := range msg.Cc {
				cc = append(cc, a.Email)
			}
			out["cc"] = cc
		}
		if !msg.Date.IsZero() {
			out["date"] = msg.Date.Format(time.RFC3339)
		}
		if len(msg.Attachments) > 0 {
			as := make([]attachmentJSON, 0, len(msg.Attachments))
			for _, a := range msg.Attachments {
				as = append(as, attachmentJSON{
					Filename:    a.Filename,
					ContentType: a.ContentType,
					Size:        a.Size,
					Inline:      a.IsInline,
				})
			}
			out["attachments"] = as
		}
		if len(msg.Errors) > 0 {
			out["parse_errors"] = msg.Errors
		}
	}
	if headers {
		hs := make([]headerJSON, 0, len(rec.Headers()))
		for _, h := range rec.Headers() {
			hs = append(hs, headerJSON{Key: h.Key, Value: h.Value})
		}
		out["headers"] = hs
	}
	if body {
		out["text"] = rec.Text()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

func init() {
	showCmd.Flags().BoolVar(&showMetadataOnly, "metadata-only", false, "skip parsing the MIME message")
	showCmd.Flags().BoolVar(&showHeaders, "headers", false, "include decoded headers in message order")
	showCmd.Flags().BoolVar(&showBody, "body", false, "include the text/plain body")
	rootCmd.AddCommand(showCmd)
}
