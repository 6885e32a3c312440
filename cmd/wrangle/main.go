// Command wrangle cleans CSV files from the terminal with the same engine
// the HTTP server uses.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/wrangle/internal/config"
	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Shell variables win over .env for the CLI
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wrangle",
		Short:        "Inspect, validate and clean CSV files",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupOutput(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "path to a TOML config file (default $"+config.FileEnv+")")
	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().String("log-level", "warn", "log level written to stderr")
	root.PersistentFlags().Bool("quiet", false, "suppress progress output")

	root.AddCommand(newInspectCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSuggestCmd())
	root.AddCommand(newFixCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func setupOutput(cmd *cobra.Command) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
	default:
		return fmt.Errorf("invalid --color %q (auto|on|off)", mode)
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	logging.SetupWriter(cmd.ErrOrStderr(), level, "text")
	return nil
}

// openFile loads path into a fresh session. The engine is configured from
// the same defaults, file and environment as the server.
func openFile(cmd *cobra.Command, path string) (*core.Engine, *core.Session, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	name := filepath.Base(path)
	ctx := core.WithCaller(cmd.Context(), core.Caller{UserAgent: "wrangle/" + version})
	ctx = logging.NewContext(ctx, logging.FromContext(ctx).With("file", name))
	cmd.SetContext(ctx)
	engine := core.NewEngine(core.OptionsFromConfig(cfg))
	sess, err := engine.Create(ctx)
	if err != nil {
		return nil, nil, err
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	var progress core.ProgressCallback
	if !quiet {
		progress = progressPrinter(cmd.ErrOrStderr())
	}

	if _, err := sess.Load(ctx, f, info.Size(), name, progress); err != nil {
		return nil, nil, describeError(err)
	}
	return engine, sess, nil
}

// progressPrinter reports each phase change once.
func progressPrinter(w io.Writer) core.ProgressCallback {
	var last core.LoadPhase
	faint := color.New(color.Faint)
	return func(p core.LoadProgress) {
		if p.Phase == last {
			return
		}
		last = p.Phase
		faint.Fprintf(w, "%-9s %3d%%\n", p.Phase, p.Percent())
	}
}

// describeError swaps an engine error for its user message when one is
// known, keeping the original for errors.Is.
func describeError(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
}
