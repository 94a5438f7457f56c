package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"czsc-engine/internal/czsc"
	"czsc-engine/internal/export"
	"czsc-engine/internal/metrics"
	sqlitestore "czsc-engine/internal/store/sqlite"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write strokes, segments and pivots to files",
	Long: `Rebuild the structure of one symbol (from the newest snapshot plus any
newer stored bars) and write one stroke, segment and pivot table per
frequency.

Files are named {symbol}_{freq}_{bi|xd|zs}.{csv|json|parquet}.

Examples:
  czsc export --symbol 600519.SH --format parquet --out export/
  czsc export --symbol 600519.SH --format csv --no-resume`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportSymbol   string
	exportFormat   string
	exportOut      string
	exportNoResume bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportSymbol, "symbol", "s", "", "symbol to export (default: config symbol)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "parquet", "output format: "+strings.Join(export.Formats(), ", "))
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "export", "output directory")
	exportCmd.Flags().BoolVar(&exportNoResume, "no-resume", false, "ignore stored snapshots and replay every bar")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	saver := export.NewSaver(exportFormat)
	if saver == nil {
		return fmt.Errorf("unknown format %q (want %s)", exportFormat, strings.Join(export.Formats(), ", "))
	}

	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer r.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	s, err := newSession(exportSymbol, r, m)
	if err != nil {
		return err
	}
	if err := s.load(ctx, cfg.Trader(s.symbol, m, nil), !exportNoResume, time.Time{}, 0); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range s.tr.Freqs() {
		st := export.Structure{Symbol: s.symbol, Freq: f}
		err := s.tr.View(f, func(c *czsc.CZSC) {
			st.BIs = c.BIList()
			st.XDs = c.XDList()
			st.ZSs = c.ZSList()
		})
		if err != nil {
			return err
		}
		paths, err := export.WriteAll(saver, exportOut, st)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(out, p)
		}
	}
	return nil
}
