package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/emlx"
)

var flagsJSON bool

var flagsCmd = &cobra.Command{
	Use:         "flags",
	Short:       "Decode and encode Mail.app flag integers",
	Annotations: map[string]string{annotationNoConfig: "true"},
}

var flagsDecodeCmd = &cobra.Command{
	Use:   "decode <flags>",
	Short: "Decode a plist flags integer",
	Long: `Decode the integer stored under "flags" in an .emlx property list.
Decimal, 0x hex and 0o octal forms are accepted.

Example:
  emlx flags decode 8623489089`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid flags value %q: %w", args[0], err)
		}
		flags := emlx.DecodeFlags(raw)

		out := cmd.OutOrStdout()
		if flagsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(flags)
		}
		writeFlags(out, flags)
		return nil
	},
}

var flagsEncodeCmd = &cobra.Command{
	Use:   "encode <name[=value]>...",
	Short: "Pack flag names into a plist flags integer",
	Long: `Pack flags into the integer layout Mail.app stores. Boolean flags are
given by name; counters take a value.

Example:
  emlx flags encode read flagged attachment_count=2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags, err := parseFlagArgs(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), emlx.EncodeFlags(flags))
		return nil
	},
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the flag fields and their bit positions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows [][]string
		var offset uint
		for _, name := range emlx.FlagNames() {
			width := emlx.FlagWidth(name)
			rows = append(rows, []string{
				name,
				strconv.FormatUint(uint64(offset), 10),
				strconv.FormatUint(uint64(width), 10),
			})
			offset += width
		}
		writeTable(cmd.OutOrStdout(), []string{"FLAG", "BIT", "WIDTH"}, rows)
		return nil
	},
}

// writeFlags prints set flags in bit order, one per line.
func writeFlags(w io.Writer, flags emlx.FlagMap) {
	if len(flags) == 0 {
		fmt.Fprintln(w, "(no flags set)")
		return
	}
	for _, name := range emlx.FlagNames() {
		switch v := flags[name].(type) {
		case bool:
			fmt.Fprintln(w, name)
		case int:
			fmt.Fprintf(w, "%s=%d\n", name, v)
		}
	}
}

func parseFlagArgs(args []string) (emlx.FlagMap, error) {
	flags := emlx.FlagMap{}
	for _, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		width := emlx.FlagWidth(name)
		if width == 0 {
			return nil, fmt.Errorf("unknown flag %q (see 'emlx flags list')", name)
		}
		if !hasValue {
			if width != 1 {
				return nil, fmt.Errorf("flag %q needs a value (%s=N)", name, name)
			}
			flags[name] = true
			continue
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("flag %q: invalid value %q", name, value)
		}
		if n >= 1<<width {
			return nil, fmt.Errorf("flag %q: value %d does not fit in %d bit(s)", name, n, width)
		}
		flags[name] = int(n)
	}
	return flags, nil
}

func init() {
	flagsDecodeCmd.Flags().BoolVar(&flagsJSON, "json", false, "output flags as JSON")
	flagsCmd.AddCommand(flagsDecodeCmd, flagsEncodeCmd, flagsListCmd)
	rootCmd.AddCommand(flagsCmd)
}
