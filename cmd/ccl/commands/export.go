package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/spf13/cobra"
)

var (
	exportOutput   string
	exportEncoding string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export configurations as JSON or CBOR",
	Long: `Export every loaded configuration as one JSON array or its CBOR
transcoding. The encoding defaults to CBOR for a .cbor output file.

Examples:
  ccl export --output ccl-configuration.json
  ccl export --output ccl-configuration.cbor
  ccl export --profile prod --encoding cbor > configs.cbor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		enc := exportEncoding
		if enc == "" {
			enc = "json"
			if strings.EqualFold(filepath.Ext(exportOutput), ".cbor") {
				enc = "cbor"
			}
		}
		f, err := codec.ParseFormat(enc)
		if err != nil {
			return err
		}

		b, _, err := backend(ctx)
		if err != nil {
			return err
		}
		list, err := b.ListConfigurations(ctx)
		if err != nil {
			return fmt.Errorf("failed to list configurations: %w", err)
		}
		configs := make([]rules.Configuration, 0, len(list.Configurations))
		for _, s := range list.Configurations {
			c, err := b.GetConfiguration(ctx, s.Country, s.Version)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", s.Key, err)
			}
			configs = append(configs, *c)
		}

		data, err := codec.EncodeConfigurations(configs, f)
		if err != nil {
			return err
		}
		if exportOutput == "" || exportOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOutput, err)
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d configurations to %s (%s)\n", len(configs), exportOutput, f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportEncoding, "encoding", "", "Encoding (json, cbor)")
}
