package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"czsc-engine/internal/markethours"
)

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	// Location for timestamps without an offset. Default: exchange time.
	Location *time.Location
	// Symbol fills rows when the file has no symbol column.
	Symbol string
	// From and To filter rows to [From, To) when set.
	From time.Time
	To   time.Time
}

var requiredColumns = []string{"dt", "open", "close", "high", "low", "volume"}

// columnAliases maps accepted header spellings to canonical names.
var columnAliases = map[string]string{
	"symbol": "symbol", "code": "symbol", "ts_code": "symbol",
	"dt": "dt", "datetime": "dt", "date": "dt", "time": "dt", "trade_date": "dt",
	"open": "open", "close": "close", "high": "high", "low": "low",
	"volume": "volume", "vol": "volume",
	"amount": "amount",
}

var dtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
}

var dateLayouts = []string{"2006-01-02", "20060102", "2006/01/02"}

// ReadCSV reads bar records with a header row naming at least
// dt,open,close,high,low,volume. symbol and amount are optional.
// Date-only timestamps are placed at the market close.
func ReadCSV(r io.Reader, opts CSVOptions) ([]Record, error) {
	if opts.Location == nil {
		opts.Location = markethours.CST
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canon, ok := columnAliases[name]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("ingest: missing column %q", c)
		}
	}
	if _, ok := cols["symbol"]; !ok && opts.Symbol == "" {
		return nil, fmt.Errorf("ingest: no symbol column and no symbol option")
	}

	var out []Record
	line := 1
	for {
		row, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		if len(row) == 0 || len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec, err := parseRow(row, cols, opts)
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		if !opts.From.IsZero() && rec.DT.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && !rec.DT.Before(opts.To) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string, cols map[string]int, opts CSVOptions) (Record, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := Record{Symbol: field("symbol")}
	if rec.Symbol == "" {
		rec.Symbol = opts.Symbol
	}
	dt, err := parseDT(field("dt"), opts.Location)
	if err != nil {
		return Record{}, err
	}
	rec.DT = dt

	for _, p := range []struct {
		name     string
		dst      *decimal.Decimal
		optional bool
	}{
		{"open", &rec.Open, false},
		{"close", &rec.Close, false},
		{"high", &rec.High, false},
		{"low", &rec.Low, false},
		{"volume", &rec.Volume, false},
		{"amount", &rec.Amount, true},
	} {
		s := field(p.name)
		if s == "" && p.optional {
			continue
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return Record{}, fmt.Errorf("bad %s %q: %w", p.name, s, err)
		}
		*p.dst = v
	}
	return rec, nil
}

func parseDT(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty dt")
	}
	for _, layout := range dtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return markethours.TodayClose(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad dt %q", s)
}
