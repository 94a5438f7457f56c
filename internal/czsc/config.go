package czsc

import (
	"log/slog"
	"math"
	"os"
	"strconv"

	"czsc-engine/internal/model"
	"czsc-engine/internal/segment"
)

// Defaults
const (
	DefaultMaxBiNum = 50
	DefaultMinBiLen = 7
	DefaultMinBiGap = 0.001
)

// Environment overrides, read once by New when the field is zero.
const (
	EnvMinBiLen = "CZSC_MIN_BI_LEN"
	EnvMaxBiNum = "CZSC_MAX_BI_NUM"
)

// ZSSource selects the legs pivots are built from.
type ZSSource string

const (
	ZSFromBI ZSSource = "bi"
	ZSFromXD ZSSource = "xd"
)

// Valid reports whether s is a known source.
func (s ZSSource) Valid() bool {
	return s == ZSFromBI || s == ZSFromXD
}

// Config holds the facade settings. Zero values select the defaults.
type Config struct {
	MaxBiNum int          `json:"max_bi_num"`
	MinBiLen int          `json:"min_bi_len"`
	MinBiGap float64      `json:"min_bi_gap"`
	XDMode   segment.Mode `json:"xd_mode"`
	ZSSource ZSSource     `json:"zs_source"`
	Verbose  bool         `json:"verbose"`

	Logger  *slog.Logger `json:"-"`
	Signals []SignalFunc `json:"-"`
}

// withDefaults resolves environment overrides and defaults, then validates.
func (c Config) withDefaults() (Config, error) {
	if c.MinBiLen == 0 {
		n, err := envInt(EnvMinBiLen)
		if err != nil {
			return c, err
		}
		c.MinBiLen = n
	}
	if c.MaxBiNum == 0 {
		n, err := envInt(EnvMaxBiNum)
		if err != nil {
			return c, err
		}
		c.MaxBiNum = n
	}
	if c.MinBiLen == 0 {
		c.MinBiLen = DefaultMinBiLen
	}
	if c.MaxBiNum == 0 {
		c.MaxBiNum = DefaultMaxBiNum
	}
	if c.MinBiGap == 0 {
		c.MinBiGap = DefaultMinBiGap
	}
	if c.XDMode == "" {
		c.XDMode = segment.Strict
	}
	if c.ZSSource == "" {
		c.ZSSource = ZSFromBI
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, c.validate()
}

func (c Config) validate() error {
	switch {
	case c.MaxBiNum < 1:
		return &model.ConfigError{Field: "max_bi_num", Reason: "must be positive"}
	case c.MinBiLen < 3:
		return &model.ConfigError{Field: "min_bi_len", Reason: "must be at least 3"}
	case c.MinBiGap < 0 || math.IsNaN(c.MinBiGap) || math.IsInf(c.MinBiGap, 0):
		return &model.ConfigError{Field: "min_bi_gap", Reason: "must be a finite non-negative number"}
	case !c.XDMode.Valid():
		return &model.ConfigError{Field: "xd_mode", Reason: "unknown mode " + string(c.XDMode)}
	case !c.ZSSource.Valid():
		return &model.ConfigError{Field: "zs_source", Reason: "unknown source " + string(c.ZSSource)}
	}
	return nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &model.ConfigError{Field: key, Reason: "not an integer: " + v}
	}
	return n, nil
}
