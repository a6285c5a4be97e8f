package commands

import (
	"fmt"

	"github.com/TimurManjosov/cclengine/internal/cli"
	"github.com/spf13/cobra"
)

var (
	walletInput    string
	walletLanguage string
)

var walletInfoCmd = &cobra.Command{
	Use:   "wallet-info",
	Short: "Compute the wallet info for a set of certificates",
	Long: `Run getDccWalletInfo on an input document holding "now", "language"
and "certificates". With --language the texts of the result are rendered.

Examples:
  ccl wallet-info --input wallet.json --language de
  ccl wallet-info --input wallet.json --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input, err := readObject(cmd, walletInput)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		b, remote, err := backend(ctx)
		if err != nil {
			return err
		}
		res, err := b.WalletInfo(ctx, input, selection(cmd, remote), walletLanguage)
		if err != nil {
			return fmt.Errorf("wallet info: %w", err)
		}

		f, err := outputFormat()
		if err != nil {
			return err
		}
		return cli.PrintWalletInfo(out(cmd), res, f)
	},
}

func init() {
	rootCmd.AddCommand(walletInfoCmd)

	walletInfoCmd.Flags().StringVarP(&walletInput, "input", "i", "-", "Input file (JSON or CBOR, - for stdin)")
	walletInfoCmd.Flags().StringVarP(&walletLanguage, "language", "l", "", "Render texts in this language")
}
