package commands

import (
	"encoding/json"
	"fmt"

	"github.com/TimurManjosov/cclengine/internal/cli"
	"github.com/TimurManjosov/cclengine/internal/client"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/spf13/cobra"
)

var (
	evalInput       string
	evalDescriptors string
	evalReplace     bool
	evalFull        bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <function>",
	Short: "Evaluate a configuration function",
	Long: `Evaluate one function of the selected configuration with a JSON or
CBOR parameter object.

--descriptors adds or shadows functions for this evaluation only; with
--replace they are the only functions available.

Examples:
  ccl evaluate getDccWalletInfo --input wallet.json
  ccl evaluate myCheck --input params.json --descriptors check.json --replace
  cat params.json | ccl evaluate __analyzeDccWallet --input -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input := map[string]any{}
		if evalInput != "" {
			var err error
			if input, err = readObject(cmd, evalInput); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
		}
		req := client.EvaluateRequest{Input: input, ReplaceDescriptors: evalReplace}
		if evalDescriptors != "" {
			descs, err := readDescriptors(cmd, evalDescriptors)
			if err != nil {
				return err
			}
			req.Descriptors = descs
		}

		b, remote, err := backend(ctx)
		if err != nil {
			return err
		}
		res, err := b.Evaluate(ctx, args[0], req, selection(cmd, remote))
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", args[0], err)
		}

		f, err := outputFormat()
		if err != nil {
			return err
		}
		if evalFull {
			return cli.PrintValue(out(cmd), res, f)
		}
		return cli.PrintValue(out(cmd), res.Result, f)
	},
}

// readDescriptors accepts a descriptor array or a single descriptor.
func readDescriptors(cmd *cobra.Command, path string) ([]jfn.Descriptor, error) {
	tree, err := readTree(cmd, path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	if _, ok := tree.(map[string]any); ok {
		tree = []any{tree}
	}
	raw, err := json.Marshal(jfn.ToJSON(tree))
	if err != nil {
		return nil, err
	}
	var descs []jfn.Descriptor
	if err := json.Unmarshal(raw, &descs); err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	return descs, nil
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evalInput, "input", "i", "", "Parameter object file (JSON or CBOR, - for stdin)")
	evaluateCmd.Flags().StringVar(&evalDescriptors, "descriptors", "", "Descriptor file to add for this evaluation")
	evaluateCmd.Flags().BoolVar(&evalReplace, "replace", false, "Use only the given descriptors")
	evaluateCmd.Flags().BoolVar(&evalFull, "full", false, "Print the evaluation envelope, not only the result")
}
