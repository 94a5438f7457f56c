package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// Saver writes one table per call in a fixed file format.
type Saver interface {
	Extension() string
	SaveBIs(rows []BIRow, path string) error
	SaveXDs(rows []XDRow, path string) error
	SaveZSs(rows []ZSRow, path string) error
}

// NewSaver returns the saver for format (csv, json, parquet), or nil if the
// format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "json":
		return JSONSaver{}
	case "parquet":
		return ParquetSaver{}
	default:
		return nil
	}
}

// Formats lists the supported formats.
func Formats() []string { return []string{"csv", "json", "parquet"} }

// CSVSaver writes tables as CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) SaveBIs(rows []BIRow, path string) error {
	return writeCSV(path, biHeader, rows, BIRow.record)
}

func (CSVSaver) SaveXDs(rows []XDRow, path string) error {
	return writeCSV(path, xdHeader, rows, XDRow.record)
}

func (CSVSaver) SaveZSs(rows []ZSRow, path string) error {
	return writeCSV(path, zsHeader, rows, ZSRow.record)
}

func writeCSV[T any](path string, header []string, rows []T, record func(T) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// JSONSaver writes tables as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) SaveBIs(rows []BIRow, path string) error { return writeJSON(path, rows) }
func (JSONSaver) SaveXDs(rows []XDRow, path string) error { return writeJSON(path, rows) }
func (JSONSaver) SaveZSs(rows []ZSRow, path string) error { return writeJSON(path, rows) }

func writeJSON[T any](path string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return f.Close()
}

// ParquetSaver writes tables as Parquet files.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) SaveBIs(rows []BIRow, path string) error { return parquet.WriteFile(path, rows) }
func (ParquetSaver) SaveXDs(rows []XDRow, path string) error { return parquet.WriteFile(path, rows) }
func (ParquetSaver) SaveZSs(rows []ZSRow, path string) error { return parquet.WriteFile(path, rows) }

// Structure is the exported view of one engine.
type Structure struct {
	Symbol string
	Freq   freq.Freq
	BIs    []model.BI
	XDs    []model.XD
	ZSs    []model.ZS
}

// WriteAll writes the stroke, segment and pivot tables of st into dir as
// {symbol}_{freq}_{bi|xd|zs}.{ext} and returns the written paths.
func WriteAll(s Saver, dir string, st Structure) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	base := filepath.Join(dir, fileSafe(st.Symbol)+"_"+fileSafe(st.Freq.String()))
	ext := "." + s.Extension()

	steps := []struct {
		path string
		save func(string) error
	}{
		{base + "_bi" + ext, func(p string) error { return s.SaveBIs(BIRows(st.Symbol, st.Freq, st.BIs), p) }},
		{base + "_xd" + ext, func(p string) error { return s.SaveXDs(XDRows(st.Symbol, st.Freq, st.XDs), p) }},
		{base + "_zs" + ext, func(p string) error { return s.SaveZSs(ZSRows(st.Symbol, st.Freq, st.ZSs), p) }},
	}
	paths := make([]string, 0, len(steps))
	for _, step := range steps {
		if err := step.save(step.path); err != nil {
			return paths, fmt.Errorf("export %s: %w", filepath.Base(step.path), err)
		}
		paths = append(paths, step.path)
	}
	return paths, nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func intStr(n int64) string { return strconv.FormatInt(n, 10) }
