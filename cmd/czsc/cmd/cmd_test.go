package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), errOut.String())
	return out.String()
}

// writeZigzagCSV writes n weekday bars moving in 10-bar legs.
func writeZigzagCSV(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("symbol,date,open,close,high,low,vol,amount\n")
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		step := float64(i%10) * 0.5
		p := 20 + step
		if (i/10)%2 == 1 {
			p = 25 - step
		}
		fmt.Fprintf(&b, "600519.SH,%s,%.2f,%.2f,%.2f,%.2f,1000,%.2f\n",
			day.Format(time.DateOnly), p, p+0.2, p+0.4, p-0.4, 1000*p)
		day = day.AddDate(0, 0, 1)
		i++
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestCLI_ImportAnalyzeExport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CZSC_SQLITE_PATH", filepath.Join(dir, "db", "czsc.db"))
	t.Setenv("CZSC_LOG_LEVEL", "error")
	t.Setenv("CZSC_MIN_BI_LEN", "5")
	t.Setenv("CZSC_SIGNALS", "sma:5,rsi:14")

	csvPath := filepath.Join(dir, "600519.csv")
	writeZigzagCSV(t, csvPath, 150)

	out := execute(t, "import", "--csv", csvPath, "--freq", "D")
	assert.Contains(t, out, "imported 150 D bars of 600519.SH")

	out = execute(t, "analyze", "--symbol", "600519.SH", "--save-snapshot")
	assert.Contains(t, out, "600519.SH: replayed 150 bars (0 skipped)")
	assert.Contains(t, out, "STROKES")
	assert.Contains(t, out, "D:SMA5 = ")
	assert.Contains(t, out, "W:RSI14 = ")
	assert.Contains(t, out, "snapshot ")

	resumed := filepath.Join(dir, "resumed")
	out = execute(t, "export", "--symbol", "600519.SH", "--format", "csv", "--out", resumed)
	for _, name := range []string{"600519.SH_D_bi.csv", "600519.SH_W_xd.csv", "600519.SH_M_zs.csv"} {
		assert.Contains(t, out, filepath.Join(resumed, name))
		assert.FileExists(t, filepath.Join(resumed, name))
	}

	fresh := filepath.Join(dir, "fresh")
	execute(t, "export", "--symbol", "600519.SH", "--format", "csv", "--out", fresh, "--no-resume")
	for _, f := range []string{"D", "W", "M"} {
		name := "600519.SH_" + f + "_bi.csv"
		a, err := os.ReadFile(filepath.Join(resumed, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(fresh, name))
		require.NoError(t, err)
		assert.Equal(t, string(b), string(a), name)
	}

	data, err := os.ReadFile(filepath.Join(fresh, "600519.SH_D_bi.csv"))
	require.NoError(t, err)
	assert.Greater(t, strings.Count(string(data), "\n"), 2, "daily strokes expected")
}

func TestCLI_Config(t *testing.T) {
	t.Setenv("CZSC_REDIS_PASSWORD", "hunter2")
	out := execute(t, "config")
	assert.Contains(t, out, "base_freq: D")
	assert.Contains(t, out, "min_bi_len: 7")
	assert.NotContains(t, out, "hunter2")
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CZSC_SQLITE_PATH", filepath.Join(dir, "czsc.db"))
	t.Setenv("CZSC_LOG_LEVEL", "error")

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})

	rootCmd.SetArgs([]string{"export", "--symbol", "X", "--format", "xlsx"})
	assert.ErrorContains(t, rootCmd.Execute(), "unknown format")

	rootCmd.SetArgs([]string{"import", "--csv", filepath.Join(dir, "missing.csv")})
	assert.ErrorContains(t, rootCmd.Execute(), "open csv")

	rootCmd.SetArgs([]string{"analyze", "--symbol", "X", "--publish"})
	assert.ErrorContains(t, rootCmd.Execute(), "redis.addr")

	rootCmd.SetArgs([]string{"feed"})
	assert.ErrorContains(t, rootCmd.Execute(), "redis.addr")

	t.Setenv("CZSC_MIN_BI_LEN", "1")
	rootCmd.SetArgs([]string{"config"})
	assert.Error(t, rootCmd.Execute())
}
