package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/markethours"
	"czsc-engine/internal/model"
)

const dailyCSV = `symbol,dt,open,close,high,low,volume,amount
600519.SH,2024-01-03,10.10,10.30,10.50,10.00,1200,12300.5
600519.SH,2024-01-02,10.00,10.10,10.20,9.90,1000,10050

600519.SH,2024-01-04,10.30,10.20,10.40,10.15,900,
`

func rec(dt time.Time, o, c, h, l string) Record {
	return Record{
		Symbol: "000001.SZ", DT: dt,
		Open: decimal.RequireFromString(o), Close: decimal.RequireFromString(c),
		High: decimal.RequireFromString(h), Low: decimal.RequireFromString(l),
		Volume: decimal.NewFromInt(100),
	}
}

func TestReadCSV_Daily(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(dailyCSV), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, "600519.SH", first.Symbol)
	assert.Equal(t, time.Date(2024, 1, 3, 15, 0, 0, 0, markethours.CST), first.DT)
	assert.True(t, decimal.RequireFromString("10.1").Equal(first.Open))
	assert.True(t, decimal.RequireFromString("12300.5").Equal(first.Amount))
	assert.True(t, recs[2].Amount.IsZero())
}

func TestReadCSV_IntradayAliasesAndSymbolOption(t *testing.T) {
	in := "datetime,Open,High,Low,Close,vol\n2024-03-04 09:31:00,10,11,9,10.5,5\n"
	recs, err := ReadCSV(strings.NewReader(in), CSVOptions{Symbol: "000001.SH", Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "000001.SH", recs[0].Symbol)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 31, 0, 0, time.UTC), recs[0].DT)
	assert.True(t, decimal.NewFromInt(11).Equal(recs[0].High))
}

func TestReadCSV_Filters(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(dailyCSV), CSVOptions{
		From: time.Date(2024, 1, 3, 0, 0, 0, 0, markethours.CST),
		To:   time.Date(2024, 1, 4, 0, 0, 0, 0, markethours.CST),
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].DT.Day())
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]struct {
		in   string
		opts CSVOptions
		want string
	}{
		"missing column": {in: "symbol,dt,open,close,high\n", want: `missing column "low"`},
		"no symbol":      {in: "dt,open,close,high,low,volume\n", want: "no symbol"},
		"bad price": {
			in:   "symbol,dt,open,close,high,low,volume\nX,2024-01-02,abc,1,1,1,1\n",
			want: "line 2: bad open",
		},
		"bad dt": {
			in:   "symbol,dt,open,close,high,low,volume\nX,yesterday,1,1,1,1,1\n",
			want: `bad dt "yesterday"`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.in), tc.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestReadCSV_Empty(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNewRawBar(t *testing.T) {
	dt := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	bar, err := NewRawBar(rec(dt, "10.1", "10.3", "10.5", "10"))
	require.NoError(t, err)
	assert.Equal(t, 10.1, bar.Open)
	assert.Equal(t, 10.5, bar.High)
	assert.Equal(t, 100.0, bar.Volume)

	_, err = NewRawBar(rec(dt, "10", "10", "9", "11"))
	assert.True(t, errors.Is(err, model.ErrData))

	noSym := rec(dt, "1", "1", "1", "1")
	noSym.Symbol = ""
	_, err = NewRawBar(noSym)
	assert.True(t, errors.Is(err, model.ErrData))
}

func TestFormatStandardKline(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 15, 0, 0, 0, time.UTC) }
	recs := []Record{
		rec(d(4), "3", "3", "3", "3"),
		rec(d(2), "1", "1", "1", "1"),
		rec(d(3), "2", "2", "2", "2"),
		rec(d(3), "2.5", "2.5", "2.5", "2.5"),
	}
	bars, err := FormatStandardKline(recs, freq.D)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	for i, b := range bars {
		assert.Equal(t, i, b.ID)
		assert.Equal(t, freq.D, b.Freq)
	}
	assert.Equal(t, d(2), bars[0].DT)
	assert.Equal(t, 2.5, bars[1].Close, "later duplicate wins")
	assert.Equal(t, d(4), bars[2].DT)
}

func TestFormatStandardKline_Errors(t *testing.T) {
	d := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	_, err := FormatStandardKline(nil, freq.Unknown)
	assert.True(t, errors.Is(err, model.ErrConfig))

	other := rec(d.AddDate(0, 0, 1), "1", "1", "1", "1")
	other.Symbol = "600000.SH"
	_, err = FormatStandardKline([]Record{rec(d, "1", "1", "1", "1"), other}, freq.D)
	assert.True(t, errors.Is(err, model.ErrData))

	_, err = FormatStandardKline([]Record{rec(d, "1", "1", "0.5", "2")}, freq.D)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")
}
