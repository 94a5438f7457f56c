package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/markethours"
	"czsc-engine/internal/model"
)

func openPair(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "czsc.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func dailyBars(n int) []model.RawBar {
	out := make([]model.RawBar, n)
	for i := range out {
		p := 10 + float64(i)
		out[i] = model.RawBar{
			Symbol: "600519.SH", ID: i, Freq: freq.D,
			DT:   time.Date(2024, 1, 2+i, 15, 0, 0, 0, markethours.CST),
			Open: p, Close: p + 0.5, High: p + 1, Low: p - 1, Volume: 100, Amount: 1000,
		}
	}
	return out
}

func TestWriter_WriteAndReadBars(t *testing.T) {
	ctx := context.Background()
	w, r := openPair(t)

	bars := dailyBars(5)
	require.NoError(t, w.WriteBars(ctx, bars))

	got, err := r.ReadBars(ctx, "600519.SH", freq.D, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	after, err := r.ReadBars(ctx, "600519.SH", freq.D, bars[2].DT)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, bars[3].DT, after[0].DT)
	assert.Equal(t, 0, after[0].ID)

	none, err := r.ReadBars(ctx, "600519.SH", freq.W, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriter_UpsertReplacesSameDT(t *testing.T) {
	ctx := context.Background()
	w, r := openPair(t)

	bars := dailyBars(3)
	require.NoError(t, w.WriteBars(ctx, bars))
	fix := bars[2]
	fix.Close = fix.High
	require.NoError(t, w.WriteBars(ctx, []model.RawBar{fix}))

	got, err := r.ReadBars(ctx, "600519.SH", freq.D, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, fix.High, got[2].Close)

	last, ok, err := r.LastDT(ctx, "600519.SH", freq.D)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bars[2].DT, last)

	_, ok, err = r.LastDT(ctx, "000001.SZ", freq.D)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriter_RejectsBarWithoutFreq(t *testing.T) {
	w, r := openPair(t)
	bars := dailyBars(2)
	bars[1].Freq = freq.Unknown
	assert.Error(t, w.WriteBars(context.Background(), bars))

	got, err := r.ReadBars(context.Background(), "600519.SH", freq.D, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got, "failed batch must roll back")
}

func TestWriter_RunBatches(t *testing.T) {
	w, r := openPair(t)
	ch := make(chan model.RawBar)
	done := make(chan int)
	go func() { done <- w.Run(context.Background(), ch) }()

	bars := dailyBars(20)
	for _, b := range bars {
		ch <- b
	}
	close(ch)
	assert.Equal(t, 20, <-done)

	got, err := r.ReadBars(context.Background(), "600519.SH", freq.D, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

type payload struct {
	N int `json:"n"`
}

func TestSnapshots_LatestAndPrune(t *testing.T) {
	ctx := context.Background()
	w, r := openPair(t)

	var miss payload
	id, err := r.ReadLatestSnapshot(ctx, "600519.SH", "trader", &miss)
	require.NoError(t, err)
	assert.Empty(t, id)

	var last string
	for i := 0; i < 15; i++ {
		last, err = w.SaveSnapshot(ctx, "600519.SH", "trader", payload{N: i})
		require.NoError(t, err)
	}
	_, err = w.SaveSnapshot(ctx, "600519.SH", "D", payload{N: 99})
	require.NoError(t, err)

	var got payload
	id, err = r.ReadLatestSnapshot(ctx, "600519.SH", "trader", &got)
	require.NoError(t, err)
	assert.Equal(t, last, id)
	assert.Equal(t, 14, got.N)

	var count int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM snapshots WHERE scope = 'trader'`).Scan(&count))
	assert.Equal(t, snapshotsKept, count)
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM snapshots WHERE scope = 'D'`).Scan(&count))
	assert.Equal(t, 1, count)
}
