package commands

import (
	"fmt"
	"os"

	"github.com/TimurManjosov/cclengine/internal/cli"
	"github.com/TimurManjosov/cclengine/internal/conformance"
	"github.com/spf13/cobra"
)

var (
	confFilter     string
	confFailedOnly bool
	confParallel   int
	confOutput     string
)

var conformanceCmd = &cobra.Command{
	Use:   "conformance",
	Short: "Run exported evaluation test cases",
	Long: `Run or record test case files of the form
{"testCases": [{"title", "functions", "useDefaultCCLConfiguration",
"evaluateFunction": {"name", "parameters"}, "exp"}]}.

Test cases always run in-process, on the bundled configurations or
--rules-file.`,
}

var conformanceRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compare evaluation results with the expected ones",
	Long: `Evaluate every test case and compare the canonical JSON of the result
with the expected value. Exits non-zero when a case fails.

Examples:
  ccl conformance run ccl-test-cases.gen.json
  ccl conformance run ccl-test-cases.gen.json --filter booster --failed-only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		suite, err := conformance.LoadFile(args[0])
		if err != nil {
			return err
		}
		suite = suite.Filter(confFilter)

		e, err := localEngine(ctx)
		if err != nil {
			return err
		}
		r := &conformance.Runner{Engine: e, Parallelism: confParallel, Logger: logger}
		rep, err := r.Run(ctx, suite)
		if err != nil {
			return err
		}

		f, err := outputFormat()
		if err != nil {
			return err
		}
		if err := cli.PrintReport(out(cmd), rep, f, confFailedOnly); err != nil {
			return err
		}
		if !rep.OK() {
			return fmt.Errorf("%d of %d test cases failed", rep.Failed, len(rep.Results))
		}
		return nil
	},
}

var conformanceRecordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Fill in the expected results of a test case file",
	Long: `Evaluate every test case and write the file back with "exp" set to
the current result.

Example:
  ccl conformance record cases.json --output ccl-test-cases.gen.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		suite, err := conformance.LoadFile(args[0])
		if err != nil {
			return err
		}
		e, err := localEngine(ctx)
		if err != nil {
			return err
		}
		r := &conformance.Runner{Engine: e, Parallelism: confParallel, Logger: logger}
		recorded, err := r.Record(ctx, suite)
		if err != nil {
			return err
		}

		target := confOutput
		if target == "" {
			target = args[0]
		}
		if target == "-" {
			return conformance.Write(cmd.OutOrStdout(), recorded)
		}
		f, err := os.Create(target)
		if err != nil {
			return err
		}
		if err := conformance.Write(f, recorded); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Recorded %d test cases to %s\n", len(recorded.TestCases), target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conformanceCmd)
	conformanceCmd.AddCommand(conformanceRunCmd)
	conformanceCmd.AddCommand(conformanceRecordCmd)

	conformanceCmd.PersistentFlags().IntVar(&confParallel, "parallel", 0, "Concurrent evaluations (default: number of CPUs)")
	conformanceRunCmd.Flags().StringVar(&confFilter, "filter", "", "Run only cases whose title contains this text")
	conformanceRunCmd.Flags().BoolVar(&confFailedOnly, "failed-only", false, "List only failing cases")
	conformanceRecordCmd.Flags().StringVarP(&confOutput, "output", "o", "", "Output file (default: overwrite the input, - for stdout)")
}
