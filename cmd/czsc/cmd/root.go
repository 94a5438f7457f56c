package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"czsc-engine/config"
	"czsc-engine/internal/logger"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "czsc",
	Short: "Streaming Chan-theory structure engine",
	Long: `czsc builds fractals, strokes, segments and pivots from bar data,
one bar at a time, across several frequencies.

Typical workflow:
  czsc import  --csv 600519.csv --freq D
  czsc analyze --symbol 600519.SH --save-snapshot
  czsc export  --symbol 600519.SH --format parquet --out export/

Settings come from defaults, an optional --config file and CZSC_*
environment variables (e.g. CZSC_SQLITE_PATH, CZSC_REDIS_ADDR).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.LogLevel = logLevel
			if err := c.Validate(); err != nil {
				return err
			}
		}
		logger.InitWriter(cmd.ErrOrStderr(), "czsc", c.Level())
		cfg = c
		return nil
	},
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides config)")
}
