package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

func sample() Structure {
	t0 := time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)
	bi := func(i int, d model.Direction, a, b float64) model.BI {
		return model.BI{
			Direction: d,
			FxA:       model.FX{Fx: a},
			FxB:       model.FX{Fx: b},
			High:      max(a, b),
			Low:       min(a, b),
			SDT:       t0.AddDate(0, 0, 7*i),
			EDT:       t0.AddDate(0, 0, 7*i+7),
			Length:    7,
			SNR:       0.5,
		}
	}
	bis := []model.BI{
		bi(0, model.Up, 10, 15),
		bi(1, model.Down, 15, 12),
		bi(2, model.Up, 12, 17),
	}
	esc := bis[2].Leg()
	return Structure{
		Symbol: "600519.SH",
		Freq:   freq.D,
		BIs:    bis,
		XDs: []model.XD{{
			Direction: model.Up, SDT: bis[0].SDT, EDT: bis[2].EDT,
			Start: 10, End: 17, High: 17, Low: 10, BIs: bis,
		}},
		ZSs: []model.ZS{{
			SDT: bis[0].SDT, EDT: bis[1].EDT, ZG: 15, ZD: 12, GG: 15, G: 15, D: 12, DD: 10,
			Members: []model.Leg{bis[0].Leg(), bis[1].Leg()}, Escape: &esc, Third: model.ThirdBuy,
		}},
	}
}

func TestNewSaver(t *testing.T) {
	for _, f := range Formats() {
		s := NewSaver(f)
		require.NotNil(t, s, f)
		assert.Equal(t, f, s.Extension())
	}
	assert.NotNil(t, NewSaver(" Parquet "))
	assert.Nil(t, NewSaver("xlsx"))
}

func TestRows(t *testing.T) {
	st := sample()
	bis := BIRows(st.Symbol, st.Freq, st.BIs)
	require.Len(t, bis, 3)
	assert.Equal(t, "D", bis[0].Freq)
	assert.Equal(t, 15.0, bis[0].End)
	assert.Equal(t, st.BIs[0].SDT.Unix(), bis[0].SDT)

	xds := XDRows(st.Symbol, st.Freq, st.XDs)
	assert.Equal(t, int64(3), xds[0].Strokes)

	zss := ZSRows(st.Symbol, st.Freq, st.ZSs)
	assert.Equal(t, 13.5, zss[0].ZZ)
	assert.True(t, zss[0].Closed)
	assert.Equal(t, string(model.ThirdBuy), zss[0].Third)
}

func TestWriteAll_CSV(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteAll(CSVSaver{}, dir, sample())
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "600519.SH_D_bi.csv"), paths[0])

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, biHeader, recs[0])
	assert.Equal(t, "10", recs[1][5])
	assert.Equal(t, "0.5", recs[1][13])
}

func TestWriteAll_JSON(t *testing.T) {
	dir := t.TempDir()
	st := sample()
	st.ZSs = nil
	paths, err := WriteAll(JSONSaver{}, dir, st)
	require.NoError(t, err)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	var xds []XDRow
	require.NoError(t, json.Unmarshal(data, &xds))
	assert.Equal(t, XDRows(st.Symbol, st.Freq, st.XDs), xds)

	data, err = os.ReadFile(paths[2])
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestWriteAll_Parquet(t *testing.T) {
	dir := t.TempDir()
	st := sample()
	paths, err := WriteAll(ParquetSaver{}, dir, st)
	require.NoError(t, err)

	bis, err := parquet.ReadFile[BIRow](paths[0])
	require.NoError(t, err)
	assert.Equal(t, BIRows(st.Symbol, st.Freq, st.BIs), bis)

	zss, err := parquet.ReadFile[ZSRow](paths[2])
	require.NoError(t, err)
	assert.Equal(t, ZSRows(st.Symbol, st.Freq, st.ZSs), zss)
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "a_b_c_d", fileSafe("a/b:c d"))
}
