package commands

import (
	"fmt"
	"sort"

	"github.com/TimurManjosov/cclengine/internal/cli"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage server profiles",
	Long:  `Manage the server profiles in ~/.ccl/config.yaml (or $CCL_CONFIG).`,
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name> <base-url> [api-key]",
	Short: "Create or update a profile",
	Long: `Create or update a profile. The first profile becomes the default.

Examples:
  ccl profile set dev http://localhost:8080
  ccl profile set prod https://ccl.example.com my-admin-key`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		p := cli.Profile{BaseURL: args[1]}
		if len(args) == 3 {
			p.APIKey = args[2]
		}
		cfg.Profiles[args[0]] = p
		if cfg.DefaultProfile == "" {
			cfg.DefaultProfile = args[0]
		}
		if err := cli.SaveConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "Saved profile %s in %s\n", args[0], path)
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[args[0]]; !ok {
			return fmt.Errorf("%w: %q", cli.ErrProfileNotFound, args[0])
		}
		cfg.DefaultProfile = args[0]
		if err := cli.SaveConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "Default profile is now %s\n", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		w := out(cmd)
		if len(names) == 0 {
			fmt.Fprintln(w, "No profiles configured; commands run locally")
			return nil
		}
		for _, name := range names {
			p := cfg.Profiles[name]
			marker := " "
			if name == cfg.DefaultProfile {
				marker = "*"
			}
			// Mask API key for security
			fmt.Fprintf(w, "%s %s\n    base_url: %s\n    api_key: %s\n", marker, name, p.BaseURL, cli.MaskKey(p.APIKey))
		}
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[args[0]]; !ok {
			return fmt.Errorf("%w: %q", cli.ErrProfileNotFound, args[0])
		}
		delete(cfg.Profiles, args[0])
		if cfg.DefaultProfile == args[0] {
			cfg.DefaultProfile = ""
		}
		if err := cli.SaveConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "Removed profile %s\n", args[0])
		return nil
	},
}

func loadProfiles() (string, *cli.Config, error) {
	path, err := cli.ConfigPath()
	if err != nil {
		return "", nil, err
	}
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		return "", nil, err
	}
	return path, cfg, nil
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileDeleteCmd)
}
