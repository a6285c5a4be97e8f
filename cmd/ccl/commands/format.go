package commands

import (
	"encoding/json"
	"fmt"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/spf13/cobra"
)

var (
	formatInput    string
	formatLanguage string
	formatNow      string
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Render a text descriptor",
	Long: `Render one text descriptor as produced by the wallet functions.

Examples:
  ccl format --text title.json --language de
  ccl format --text subtitle.json --language en --now 2022-03-01T12:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tree, err := readTree(cmd, formatInput)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		raw, err := json.Marshal(jfn.ToJSON(tree))
		if err != nil {
			return err
		}
		var d text.Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("read text: %w", err)
		}

		b, _, err := backend(ctx)
		if err != nil {
			return err
		}
		s, err := b.FormatText(ctx, d, formatLanguage, formatNow)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		_, err = fmt.Fprintln(out(cmd), s)
		return err
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)

	formatCmd.Flags().StringVarP(&formatInput, "text", "t", "-", "Text descriptor file (JSON or CBOR, - for stdin)")
	formatCmd.Flags().StringVarP(&formatLanguage, "language", "l", "en", "Language to render")
	formatCmd.Flags().StringVar(&formatNow, "now", "", "Reference instant for relative parameters (default: now)")
}
