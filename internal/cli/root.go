package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucastaliberti/analyze-chrome-trace/internal/analyze"
	"github.com/lucastaliberti/analyze-chrome-trace/internal/projectconfig"
	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	cfg := model.DefaultConfig()

	root := &cobra.Command{
		Use:   "tbtreport",
		Short: "Track Total Blocking Time contributors across trace runs",
		Long: "tbtreport reads a Chrome performance trace, keeps the main-thread events that can contribute " +
			"to Total Blocking Time, aggregates them per task and appends them as a new run to a tab-separated report.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Output == "" {
				return errors.New(`required flag(s) "output" not set`)
			}

			result, err := analyze.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cfg.Debug {
				width := terminalWidth(out)
				for _, rr := range result.Runs {
					printSummary(out, rr, cfg.Top, width)
				}
			}
			printResult(out, result)
			return nil
		},
	}

	flags := root.Flags()
	flags.StringArrayVarP(&cfg.Inputs, "input", "i", nil, "Trace file to analyze (repeat for several runs)")
	flags.StringVarP(&cfg.Output, "output", "o", "", "Report file to create or update")
	_ = root.MarkFlagRequired("input")

	root.PersistentFlags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging and list observed categories and task names")

	root.AddCommand(newCheckCmd(&cfg))

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("tbtreport %s\n", Version))

	return root
}

// setup overlays .tbtreport.yaml onto cfg without overriding flags that
// were set explicitly, then installs the default logger.
func setup(cmd *cobra.Command, cfg *model.Config) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	pc, err := projectconfig.Load(wd)
	if err != nil {
		return err
	}

	output := cfg.Output
	pc.Apply(cfg)
	if cmd.Flags().Changed("output") {
		cfg.Output = output
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Debug))
	return nil
}

func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
