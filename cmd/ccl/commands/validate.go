package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a configuration file without loading it anywhere",
	Long: `Check every configuration of a JSON or CBOR file against the
configuration schema and compile it, reporting all schema violations.

Examples:
  ccl validate ccl-configuration.json
  ccl validate ccl-configuration.cbor`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f := codec.DetectFormat(data)
		if strings.EqualFold(filepath.Ext(path), ".cbor") {
			f = codec.FormatCBOR
		}

		tree, err := codec.DecodeTree(data, f)
		if err != nil {
			return err
		}
		docs, ok := tree.([]any)
		if !ok {
			return fmt.Errorf("%s: expected an array of configurations", path)
		}
		v, err := schema.New()
		if err != nil {
			return err
		}
		w := out(cmd)
		invalid := 0
		for i, doc := range docs {
			if err := v.Validate(schema.Configuration, doc); err != nil {
				invalid++
				var ve *schema.ValidationError
				if !errors.As(err, &ve) {
					return err
				}
				for _, viol := range ve.Violations {
					fmt.Fprintf(w, "configuration %d: %s: %s\n", i, pointer(viol.Path), viol.Message)
				}
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d configurations violate the schema", invalid, len(docs))
		}

		configs, err := codec.DecodeConfigurations(data, f)
		if err != nil {
			return err
		}
		reg, err := ccl.NewRegistry(configs, "")
		if err != nil {
			return err
		}
		for _, c := range reg.Configurations() {
			fmt.Fprintf(w, "OK  %s  %s\n", c.Key(), c.Identifier)
		}
		return nil
	},
}

func pointer(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
