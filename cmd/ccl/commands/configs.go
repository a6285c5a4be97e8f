package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TimurManjosov/cclengine/internal/cli"
	"github.com/TimurManjosov/cclengine/internal/client"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/spf13/cobra"
)

var errNeedsServer = errors.New("this command needs a server profile (--profile, --base-url or CCL_BASE_URL)")

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List and manage configurations",
	Long:  `List, show, upload and delete rule configurations.`,
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded configurations",
	Long: `List the loaded configurations.

Examples:
  ccl configs list
  ccl configs list --profile prod --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, _, err := backend(ctx)
		if err != nil {
			return err
		}
		list, err := b.ListConfigurations(ctx)
		if err != nil {
			return fmt.Errorf("failed to list configurations: %w", err)
		}
		f, err := outputFormat()
		if err != nil {
			return err
		}
		if len(list.Configurations) == 0 && f == cli.FormatTable {
			fmt.Fprintln(out(cmd), "No configurations found")
			return nil
		}
		return cli.PrintConfigurations(out(cmd), list, f)
	},
}

var configsGetCmd = &cobra.Command{
	Use:   "get <country> <version>",
	Short: "Show one configuration document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, _, err := backend(ctx)
		if err != nil {
			return err
		}
		c, err := b.GetConfiguration(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		f, err := outputFormat()
		if err != nil {
			return err
		}
		return cli.PrintValue(out(cmd), c, f)
	},
}

var configsPutCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Upload configurations to the server",
	Long: `Create or replace configurations on the server. The file holds one
configuration or an array of them, as JSON or CBOR.

Example:
  ccl configs put ccl-de-0002.json --profile prod`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		configs, err := readConfigurations(cmd, args[0])
		if err != nil {
			return err
		}
		c, err := requireRemote()
		if err != nil {
			return err
		}
		for _, cfg := range configs {
			etag, err := c.PutConfiguration(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to put %s: %w", cfg.Key(), err)
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (etag %s)\n", cfg.Key(), etag)
			}
		}
		return nil
	},
}

var configsDeleteCmd = &cobra.Command{
	Use:   "delete <country> <version>",
	Short: "Delete a configuration from the server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireRemote()
		if err != nil {
			return err
		}
		etag, err := c.DeleteConfiguration(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to delete: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s@%s (etag %s)\n", args[0], args[1], etag)
		}
		return nil
	},
}

func requireRemote() (*client.Client, error) {
	c, err := resolveRemote()
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errNeedsServer
	}
	return c, nil
}

// readConfigurations accepts a configuration array or a single document.
func readConfigurations(cmd *cobra.Command, path string) ([]rules.Configuration, error) {
	tree, err := readTree(cmd, path)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(jfn.ToJSON(tree))
	if err != nil {
		return nil, err
	}
	return rules.ParseJSON(raw)
}

func init() {
	rootCmd.AddCommand(configsCmd)
	configsCmd.AddCommand(configsListCmd)
	configsCmd.AddCommand(configsGetCmd)
	configsCmd.AddCommand(configsPutCmd)
	configsCmd.AddCommand(configsDeleteCmd)
}
