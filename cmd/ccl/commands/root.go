package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/cli"
	"github.com/TimurManjosov/cclengine/internal/client"
	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/logging"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	profileName  string
	baseURL      string
	apiKey       string
	format       string
	rulesFile    string
	country      string
	rulesVersion string
	allowDefault bool
	local        bool
	fallback     string
	logLevel     string
	quiet        bool

	logger = zerolog.Nop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ccl",
	Short: "Evaluate and manage wallet rule configurations",
	Long: `ccl evaluates wallet rule configurations locally or against a running
rule engine server, and manages the configurations the server holds.

Without a server profile every command runs in-process on the bundled
configurations, or on --rules-file when given.

Examples:
  ccl wallet-info --input wallet.json --language de
  ccl evaluate getDccWalletInfo --input wallet.json --country DE --rules-version 1.0.0
  ccl configs list --profile prod
  ccl export --output ccl-configuration.cbor --encoding cbor
  ccl conformance run ccl-test-cases.gen.json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(os.Stderr, logLevel, "console")
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags available to all commands
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&profileName, "profile", "", "Server profile from ~/.ccl/config.yaml")
	pf.StringVar(&baseURL, "base-url", "", "Base URL of the rule engine API")
	pf.StringVar(&apiKey, "api-key", "", "Admin API key for configuration writes")
	pf.StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	pf.StringVar(&rulesFile, "rules-file", "", "JSON or CBOR configuration file for local evaluation")
	pf.StringVar(&country, "country", "", "Country of the configuration to evaluate")
	pf.StringVar(&rulesVersion, "rules-version", "", "Version of the configuration to evaluate")
	pf.BoolVar(&allowDefault, "allow-default", true, "Fall back to the default configuration when none matches")
	pf.BoolVar(&local, "local", false, "Evaluate in-process even when a server profile is configured")
	pf.StringVar(&fallback, "fallback-language", "", "Language used when a text lacks the requested one")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVar(&quiet, "quiet", false, "Suppress output")
}

func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(format)
}

func out(cmd *cobra.Command) io.Writer {
	if quiet {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

// selection passes --allow-default only when it was set explicitly, so a
// server keeps its own default otherwise.
func selection(cmd *cobra.Command, remote bool) client.Selection {
	sel := client.Selection{Country: country, Version: rulesVersion}
	if !remote || cmd.Flags().Changed("allow-default") {
		allow := allowDefault
		sel.AllowDefault = &allow
	}
	return sel
}

// resolveRemote returns the server client, or nil for local mode.
func resolveRemote() (*client.Client, error) {
	if local {
		return nil, nil
	}
	path, err := cli.ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	p, err := cli.ResolveProfile(cfg, cli.ResolveOptions{Profile: profileName, BaseURL: baseURL, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	return client.NewClient(p.BaseURL, p.APIKey), nil
}

// localEngine loads --rules-file or the bundled configurations.
func localEngine(ctx context.Context) (*ccl.Engine, error) {
	storeType, opts := "bundled", store.Options{}
	if rulesFile != "" {
		storeType, opts.Path = "file", rulesFile
	}
	st, err := store.NewStore(ctx, storeType, opts)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return ccl.Load(ctx, st, ccl.Options{Logger: logger})
}

// backend picks the server client or the in-process engine.
func backend(ctx context.Context) (cli.Backend, bool, error) {
	c, err := resolveRemote()
	if err != nil {
		return nil, false, err
	}
	if c != nil {
		logger.Debug().Str("base_url", c.BaseURL).Msg("using server")
		return c, true, nil
	}
	e, err := localEngine(ctx)
	if err != nil {
		return nil, false, err
	}
	l := &cli.Local{Engine: e}
	if fallback != "" {
		if l.Fallback, err = text.ParseLanguage(fallback); err != nil {
			return nil, false, err
		}
	}
	return l, false, nil
}

// readTree reads a JSON or CBOR document from path, "-" meaning stdin.
func readTree(cmd *cobra.Command, path string) (any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	f := codec.DetectFormat(data)
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		f = codec.FormatCBOR
	}
	return codec.DecodeTree(data, f)
}

func readObject(cmd *cobra.Command, path string) (map[string]any, error) {
	tree, err := readTree(cmd, path)
	if err != nil {
		return nil, err
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a JSON object", path)
	}
	return obj, nil
}
