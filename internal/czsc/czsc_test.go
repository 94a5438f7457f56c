package czsc

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
	"czsc-engine/internal/segment"
)

// vShape returns 50 daily bars: 25 falling, 24 rising, and one lower bar.
func vShape() []model.RawBar {
	var bars []model.RawBar
	for i := 0; i <= 24; i++ {
		low := 100 - 2*float64(i)
		bars = append(bars, rawBar(i, low, low+3, true))
	}
	for i := 25; i <= 48; i++ {
		low := 52 + 2*float64(i-24)
		bars = append(bars, rawBar(i, low, low+3, false))
	}
	return append(bars, rawBar(49, 98, 101, true))
}

// randomWalk returns n daily bars from a seeded geometric walk with 2%
// daily volatility.
func randomWalk(seed int64, n int) []model.RawBar {
	return volatileWalk(seed, n, 0.02)
}

func volatileWalk(seed int64, n int, vol float64) []model.RawBar {
	r := rand.New(rand.NewSource(seed))
	price := 100.0
	out := make([]model.RawBar, 0, n)
	for i := 0; i < n; i++ {
		open := price
		closePrice := price * (1 + r.NormFloat64()*vol)
		high := max(open, closePrice) * (1 + r.Float64()*0.01)
		low := min(open, closePrice) * (1 - r.Float64()*0.01)
		out = append(out, model.RawBar{
			Symbol: "WALK", ID: i, DT: day0.AddDate(0, 0, i), Freq: freq.D,
			Open: open, Close: closePrice, High: high, Low: low,
			Volume: 1000 + r.Float64()*100, Amount: 1e5,
		})
		price = closePrice
	}
	return out
}

func mustNew(t *testing.T, bars []model.RawBar, cfg Config) *CZSC {
	t.Helper()
	c, err := New(bars, cfg)
	require.NoError(t, err)
	return c
}

func TestCZSC_RisingBarsNoStroke(t *testing.T) {
	var bars []model.RawBar
	for i := 0; i < 5; i++ {
		bars = append(bars, rawBar(i, 10+float64(i), 12+float64(i), false))
	}
	c := mustNew(t, bars, Config{})

	assert.Empty(t, c.BIList())
	assert.Len(t, c.BarsUBI(), 5)
	assert.Equal(t, model.Up, c.Direction())
	assert.Len(t, c.BarsRaw(), 5)
	assert.Equal(t, "TEST", c.Symbol())
	assert.Equal(t, freq.D, c.Freq())
}

func TestCZSC_VShapeStroke(t *testing.T) {
	c := mustNew(t, vShape(), Config{})

	bis := c.BIList()
	require.Len(t, bis, 1)
	bi := bis[0]
	assert.Equal(t, model.Up, bi.Direction)
	assert.Equal(t, model.Bottom, bi.FxA.Mark)
	assert.Equal(t, model.Top, bi.FxB.Mark)
	assert.Equal(t, day0.AddDate(0, 0, 24), bi.SDT)
	assert.Equal(t, day0.AddDate(0, 0, 48), bi.EDT)
	assert.Equal(t, 52.0, bi.Low)
	assert.Equal(t, 103.0, bi.High)
	assert.Equal(t, 25, bi.Length)
	assert.InDelta(t, 51.0, bi.PowerPrice, 1e-9)
	assert.Greater(t, bi.Slope, 0.0)

	assert.GreaterOrEqual(t, len(c.FXList()), 2)
	assert.Len(t, c.BarsUBI(), 3)
}

func TestCZSC_Retraction(t *testing.T) {
	c := mustNew(t, vShape(), Config{})
	retracted := 0
	c.OnRetract = func(model.BI) { retracted++ }

	// A new high invalidates the stroke's top.
	require.NoError(t, c.Update(rawBar(50, 99, 110, false)))
	assert.Empty(t, c.BIList())
	assert.Equal(t, 1, retracted)
	assert.Equal(t, day0.AddDate(0, 0, 23), c.BarsUBI()[0].DT)

	// Replacing that bar with a lower one restores the stroke.
	require.NoError(t, c.Update(rawBar(50, 96, 99.5, true)))
	require.Len(t, c.BIList(), 1)
	assert.Equal(t, 103.0, c.BIList()[0].High)
	assert.Equal(t, 50, c.BarsRaw()[len(c.BarsRaw())-1].ID)
}

func TestCZSC_RejectsOlderBar(t *testing.T) {
	c := mustNew(t, []model.RawBar{rawBar(100, 10, 12, false)}, Config{})

	err := c.Update(rawBar(99, 10, 12, false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrOrdering))
	assert.Equal(t, day0.AddDate(0, 0, 100), c.BarsRaw()[len(c.BarsRaw())-1].DT)
}

func TestCZSC_RejectsBadInput(t *testing.T) {
	c := mustNew(t, []model.RawBar{rawBar(0, 10, 12, false)}, Config{})

	bad := rawBar(1, 10, 12, false)
	bad.High = 9
	assert.ErrorIs(t, c.Update(bad), model.ErrData)

	other := rawBar(1, 10, 12, false)
	other.Symbol = "OTHER"
	assert.ErrorIs(t, c.Update(other), model.ErrData)

	wrongFreq := rawBar(1, 10, 12, false)
	wrongFreq.Freq = freq.W
	assert.ErrorIs(t, c.Update(wrongFreq), model.ErrData)

	assert.Len(t, c.BarsRaw(), 1)
}

func TestCZSC_ConfigErrors(t *testing.T) {
	tests := []Config{
		{MinBiLen: 2},
		{MaxBiNum: -1},
		{MinBiGap: -0.1},
		{XDMode: "fuzzy"},
		{ZSSource: "bars"},
	}
	for _, cfg := range tests {
		_, err := New(nil, cfg)
		assert.ErrorIs(t, err, model.ErrConfig, "%+v", cfg)
	}
}

func TestCZSC_EnvOverrides(t *testing.T) {
	t.Setenv(EnvMinBiLen, "5")
	t.Setenv(EnvMaxBiNum, "20")

	c := mustNew(t, nil, Config{})
	assert.Equal(t, 5, c.Config().MinBiLen)
	assert.Equal(t, 20, c.Config().MaxBiNum)

	c = mustNew(t, nil, Config{MinBiLen: 9})
	assert.Equal(t, 9, c.Config().MinBiLen, "explicit value wins")

	t.Setenv(EnvMinBiLen, "seven")
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestCZSC_Defaults(t *testing.T) {
	cfg := mustNew(t, nil, Config{}).Config()
	assert.Equal(t, DefaultMaxBiNum, cfg.MaxBiNum)
	assert.Equal(t, DefaultMinBiLen, cfg.MinBiLen)
	assert.Equal(t, DefaultMinBiGap, cfg.MinBiGap)
	assert.Equal(t, segment.Strict, cfg.XDMode)
	assert.Equal(t, ZSFromBI, cfg.ZSSource)
}

// checkInvariants asserts the structural properties that must hold after
// every update.
func checkInvariants(t *testing.T, c *CZSC) {
	t.Helper()
	cfg := c.Config()

	ubi := c.BarsUBI()
	for i := 1; i < len(ubi); i++ {
		require.False(t, ubi[i-1].Inclusive(ubi[i]), "merged bars %d and %d are inclusive", i-1, i)
	}

	for _, fx := range c.FXList() {
		l, m, r := fx.Left(), fx.Mid(), fx.Right()
		if fx.Mark == model.Top {
			require.True(t, m.High > l.High && m.High > r.High, "top %s", fx)
		} else {
			require.True(t, m.Low < l.Low && m.Low < r.Low, "bottom %s", fx)
		}
	}

	bis := c.BIList()
	for i, bi := range bis {
		if i > 0 {
			require.NotEqual(t, bis[i-1].Direction, bi.Direction)
		}
		hi, lo := bi.Bars[0].High, bi.Bars[0].Low
		for _, nb := range bi.Bars {
			hi, lo = max(hi, nb.High), min(lo, nb.Low)
		}
		if bi.Direction == model.Up {
			require.Equal(t, lo, bi.FxA.Fx, "stroke %s starts at its low", bi)
			require.Equal(t, hi, bi.FxB.Fx, "stroke %s ends at its high", bi)
		} else {
			require.Equal(t, hi, bi.FxA.Fx, "stroke %s starts at its high", bi)
			require.Equal(t, lo, bi.FxB.Fx, "stroke %s ends at its low", bi)
		}
		if i > 0 {
			require.Equal(t, bis[i-1].FxB.DT, bi.FxA.DT, "stroke %s starts where the previous one ends", bi)
		}
		require.True(t, bi.Length >= cfg.MinBiLen || hasGap(bi.Bars, cfg.MinBiGap))
		require.False(t, bi.FxA.BandOverlaps(bi.FxB))
	}

	xds := c.XDList()
	for i := 1; i < len(xds); i++ {
		require.NotEqual(t, xds[i-1].Direction, xds[i].Direction)
	}

	for _, zs := range c.ZSList() {
		require.Greater(t, zs.ZG, zs.ZD)
		for _, m := range zs.Members[:2] {
			require.True(t, m.High > zs.ZD && m.Low < zs.ZG)
		}
	}
}

func TestCZSC_InvariantsRandomWalk(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		for _, mode := range []segment.Mode{segment.Strict, segment.Loose} {
			c := mustNew(t, nil, Config{XDMode: mode})
			for _, b := range randomWalk(seed, 600) {
				require.NoError(t, c.Update(b))
				checkInvariants(t, c)
			}
			assert.NotEmpty(t, c.BIList(), "seed %d", seed)
		}
	}
}

func TestCZSC_StrokeExtremesVolatileWalk(t *testing.T) {
	retracted := 0
	for seed := int64(100); seed < 160; seed++ {
		for _, cfg := range []Config{{}, {MinBiGap: 100}} {
			c := mustNew(t, nil, cfg)
			c.OnRetract = func(model.BI) { retracted++ }
			for _, b := range volatileWalk(seed, 400, 0.035) {
				require.NoError(t, c.Update(b))
				checkInvariants(t, c)
			}
		}
	}
	assert.Positive(t, retracted, "the walks exercise stroke retraction")
}

func TestCZSC_IdempotentReplay(t *testing.T) {
	bars := randomWalk(3, 300)

	once := mustNew(t, bars, Config{})
	twice := mustNew(t, nil, Config{})
	for _, b := range bars {
		require.NoError(t, twice.Update(b))
		require.NoError(t, twice.Update(b))
	}

	assert.Equal(t, once.BarsRaw(), twice.BarsRaw())
	assert.Equal(t, once.BarsUBI(), twice.BarsUBI())
	assert.Equal(t, once.BIList(), twice.BIList())
	assert.Equal(t, once.XDList(), twice.XDList())
	assert.Equal(t, once.ZSList(), twice.ZSList())
}

func TestCZSC_ReplaceMatchesFreshIngest(t *testing.T) {
	bars := randomWalk(11, 250)

	ref := mustNew(t, bars, Config{})
	c := mustNew(t, nil, Config{})
	for i, b := range bars {
		if i%3 == 0 {
			// a provisional value first, then the final one
			tmp := b
			tmp.High *= 1.05
			tmp.Close = tmp.High
			require.NoError(t, c.Update(tmp))
		}
		require.NoError(t, c.Update(b))
	}

	assert.Equal(t, ref.BarsRaw(), c.BarsRaw())
	assert.Equal(t, ref.BIList(), c.BIList())
	assert.Equal(t, ref.ZSList(), c.ZSList())
}

func TestCZSC_ReadersUnaffectedByLaterUpdates(t *testing.T) {
	bars := randomWalk(5, 200)
	c := mustNew(t, bars[:150], Config{})

	held := c.BIList()
	heldCopy := append([]model.BI(nil), held...)
	heldUBI := c.BarsUBI()
	ubiCopy := append([]model.NewBar(nil), heldUBI...)

	for _, b := range bars[150:] {
		require.NoError(t, c.Update(b))
		alt := b
		alt.Low *= 0.97
		require.NoError(t, c.Update(alt))
	}
	assert.Equal(t, heldCopy, held)
	assert.Equal(t, ubiCopy, heldUBI)
}

func TestCZSC_Pruning(t *testing.T) {
	bars := randomWalk(9, 800)
	full := mustNew(t, bars, Config{MaxBiNum: 1000})
	small := mustNew(t, nil, Config{MaxBiNum: 5})
	for _, b := range bars {
		require.NoError(t, small.Update(b))
		require.LessOrEqual(t, len(small.BIList()), 5)
	}

	fb, sb := full.BIList(), small.BIList()
	require.Greater(t, len(fb), 5)
	require.Len(t, sb, 5)
	assert.Equal(t, fb[len(fb)-5:], sb)

	cut := sb[0].FxA.Left().Elements[0].DT
	assert.Equal(t, cut, small.BarsRaw()[0].DT)
	assert.Equal(t, full.BarsUBI(), small.BarsUBI())
}

func TestCZSC_StrokeHooks(t *testing.T) {
	added := 0
	c := mustNew(t, nil, Config{})
	c.OnBI = func(model.BI) { added++ }
	for _, b := range vShape() {
		require.NoError(t, c.Update(b))
	}
	assert.Equal(t, 1, added)
}

func TestCZSC_Signals(t *testing.T) {
	good := func(c *CZSC) (map[string]any, error) {
		return map[string]any{"bars": len(c.BarsRaw())}, nil
	}
	failing := func(*CZSC) (map[string]any, error) {
		return nil, errors.New("boom")
	}
	panicking := func(*CZSC) (map[string]any, error) {
		panic("signal bug")
	}
	var reentrant error
	writer := func(c *CZSC) (map[string]any, error) {
		reentrant = c.Update(rawBar(999, 1, 2, false))
		return nil, nil
	}

	var failures []int
	c := mustNew(t, nil, Config{Signals: []SignalFunc{failing, good, panicking, writer}})
	c.OnSignalError = func(i int, err error) { failures = append(failures, i) }

	for _, b := range vShape() {
		require.NoError(t, c.Update(b))
	}

	assert.Equal(t, map[string]any{"bars": 50}, c.Signals())
	assert.Len(t, failures, 2*50)
	assert.Equal(t, []int{0, 2}, failures[:2])
	assert.ErrorIs(t, reentrant, model.ErrState)
	assert.Len(t, c.BIList(), 1, "signal failures leave the structure intact")
	assert.Len(t, c.BarsRaw(), 50)
}

func TestCZSC_SnapshotRoundTrip(t *testing.T) {
	bars := randomWalk(21, 510)

	live := mustNew(t, bars[:500], Config{})
	data, err := json.Marshal(live.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	loaded, err := Restore(&snap, Config{})
	require.NoError(t, err)

	assert.Equal(t, live.BIList(), loaded.BIList())
	assert.Equal(t, live.XDList(), loaded.XDList())

	for _, b := range bars[500:] {
		require.NoError(t, live.Update(b))
		require.NoError(t, loaded.Update(b))
	}
	assert.Equal(t, live.BIList(), loaded.BIList())
	assert.Equal(t, live.XDList(), loaded.XDList())
	assert.Equal(t, live.ZSList(), loaded.ZSList())
	assert.Equal(t, live.BarsUBI(), loaded.BarsUBI())
}

func TestCZSC_SnapshotRestoresReplaceCheckpoint(t *testing.T) {
	bars := vShape()
	live := mustNew(t, bars, Config{})

	data, err := json.Marshal(live.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	loaded, err := Restore(&snap, Config{})
	require.NoError(t, err)

	// replace the last bar in both
	last := rawBar(49, 97, 100, true)
	require.NoError(t, live.Update(last))
	require.NoError(t, loaded.Update(last))
	assert.Equal(t, live.BarsUBI(), loaded.BarsUBI())
	assert.Equal(t, live.BIList(), loaded.BIList())
}

func TestRestore_Errors(t *testing.T) {
	_, err := Restore(nil, Config{})
	assert.Error(t, err)

	_, err = Restore(&Snapshot{Version: 2}, Config{})
	assert.Error(t, err)

	bad := &Snapshot{Version: SnapshotVersion, State: State{BarsRaw: []model.RawBar{
		rawBar(2, 1, 2, false), rawBar(1, 1, 2, false),
	}}}
	_, err = Restore(bad, Config{})
	assert.ErrorIs(t, err, model.ErrOrdering)
}

func TestCZSC_EmptySnapshot(t *testing.T) {
	c := mustNew(t, nil, Config{MinBiLen: 5})
	data, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	loaded, err := Restore(&snap, Config{})
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Config().MinBiLen)
	require.NoError(t, loaded.Update(rawBar(0, 1, 2, false)))
}
