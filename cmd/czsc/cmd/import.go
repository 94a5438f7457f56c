package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/ingest"
	"czsc-engine/internal/markethours"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
	sqlitestore "czsc-engine/internal/store/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load bars from a CSV file into SQLite",
	Long: `Read OHLCV rows from a CSV file, normalise them into bars of one
frequency and upsert them into the SQLite bar table.

Recognised columns: symbol (or code, ts_code), dt (or datetime, date,
trade_date), open, close, high, low, volume (or vol) and optional amount.

Examples:
  czsc import --csv 600519.csv --freq D
  czsc import --csv 000001_5m.csv --freq 5m --symbol 000001.SZ --from 2024-01-01`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var (
	importCSV    string
	importFreq   string
	importSymbol string
	importFrom   string
	importTo     string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importCSV, "csv", "", "path to CSV file (required)")
	importCmd.Flags().StringVar(&importFreq, "freq", "", "frequency of the rows (default: base_freq)")
	importCmd.Flags().StringVar(&importSymbol, "symbol", "", "symbol for files without a symbol column")
	importCmd.Flags().StringVar(&importFrom, "from", "", "first day to import (YYYY-MM-DD)")
	importCmd.Flags().StringVar(&importTo, "to", "", "day after the last day to import (YYYY-MM-DD)")
	importCmd.MarkFlagRequired("csv")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := slog.Default().With(slog.String("component", "import"))

	f := cfg.BaseFreq
	if importFreq != "" {
		var err error
		if f, err = freq.Parse(importFreq); err != nil {
			return err
		}
	}
	opts := ingest.CSVOptions{Symbol: importSymbol}
	var err error
	if opts.From, err = parseDay(importFrom); err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	if opts.To, err = parseDay(importTo); err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	file, err := os.Open(importCSV)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	recs, err := ingest.ReadCSV(file, opts)
	if err != nil {
		return err
	}
	bars, err := ingest.FormatStandardKline(recs, f)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no rows to import")
		return nil
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	w, err := openWriter(m)
	if err != nil {
		return err
	}
	defer w.Close()

	barCh := make(chan model.RawBar, 1024)
	go func() {
		defer close(barCh)
		for _, b := range bars {
			select {
			case barCh <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	start := time.Now()
	n := w.Run(ctx, barCh)
	m.ImportedBars.Add(float64(n))
	log.Info("import finished",
		slog.String("symbol", bars[0].Symbol),
		slog.String("freq", f.String()),
		slog.Int("bars", n),
		slog.Duration("took", time.Since(start)),
	)
	if n != len(bars) {
		return fmt.Errorf("imported %d of %d bars", n, len(bars))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s bars of %s (%s .. %s) into %s\n",
		n, f, bars[0].Symbol,
		bars[0].DT.Format(time.DateTime), bars[len(bars)-1].DT.Format(time.DateTime),
		cfg.SQLitePath)
	return nil
}

// openWriter opens the configured SQLite database, creating its directory.
func openWriter(m *metrics.Metrics) (*sqlitestore.Writer, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath, Metrics: m})
}

// parseDay parses YYYY-MM-DD in exchange time; "" is the zero time.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, s, markethours.CST)
}
