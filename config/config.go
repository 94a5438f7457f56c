// Package config loads the engine configuration from defaults, an optional
// YAML/JSON file and CZSC_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"czsc-engine/internal/czsc"
	"czsc-engine/internal/freq"
	"czsc-engine/internal/indicator"
	"czsc-engine/internal/logger"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
	"czsc-engine/internal/segment"
	"czsc-engine/internal/trader"
)

// EnvPrefix prefixes every environment override, e.g. CZSC_REDIS_ADDR.
const EnvPrefix = "CZSC"

// Config holds all application configuration.
type Config struct {
	Symbol   string      `mapstructure:"symbol" yaml:"symbol"`
	BaseFreq freq.Freq   `mapstructure:"base_freq" yaml:"base_freq"`
	Freqs    []freq.Freq `mapstructure:"freqs" yaml:"freqs"`

	MaxBiNum int           `mapstructure:"max_bi_num" yaml:"max_bi_num"`
	MinBiLen int           `mapstructure:"min_bi_len" yaml:"min_bi_len"`
	MinBiGap float64       `mapstructure:"min_bi_gap" yaml:"min_bi_gap"`
	XDMode   segment.Mode  `mapstructure:"xd_mode" yaml:"xd_mode"`
	ZSSource czsc.ZSSource `mapstructure:"zs_source" yaml:"zs_source"`
	MaxCount int           `mapstructure:"max_count" yaml:"max_count"`
	Verbose  bool          `mapstructure:"verbose" yaml:"verbose"`
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`

	// Signals lists indicators as kind:period, e.g. ["sma:20", "rsi:14"].
	Signals []string `mapstructure:"signals" yaml:"signals"`

	SQLitePath  string      `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Redis       RedisConfig `mapstructure:"redis" yaml:"redis"`
	MetricsAddr string      `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// RedisConfig is optional; an empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "")
	v.SetDefault("base_freq", "D")
	v.SetDefault("freqs", []string{"W", "M"})

	v.SetDefault("max_bi_num", czsc.DefaultMaxBiNum)
	v.SetDefault("min_bi_len", czsc.DefaultMinBiLen)
	v.SetDefault("min_bi_gap", czsc.DefaultMinBiGap)
	v.SetDefault("xd_mode", string(segment.Strict))
	v.SetDefault("zs_source", string(czsc.ZSFromBI))
	v.SetDefault("max_count", 5000)
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("signals", []string{})

	v.SetDefault("sqlite_path", "data/czsc.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("metrics_addr", "")
}

// Load builds a Config from defaults, the file at path (if not empty) and
// the environment, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			stringToFreqHook,
			stringToModeHook,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

var (
	freqType = reflect.TypeOf(freq.Freq(0))
	modeType = reflect.TypeOf(segment.Mode(""))
)

func stringToFreqHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != freqType {
		return data, nil
	}
	return freq.Parse(data.(string))
}

func stringToModeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != modeType {
		return data, nil
	}
	return segment.ParseMode(data.(string))
}

// Validate checks every field and reports the first problem as a
// *model.ConfigError.
func (c *Config) Validate() error {
	if !c.BaseFreq.Valid() {
		return &model.ConfigError{Field: "base_freq", Reason: "unknown frequency"}
	}
	seen := make(map[freq.Freq]bool, len(c.Freqs))
	for _, f := range c.Freqs {
		switch {
		case !f.Valid():
			return &model.ConfigError{Field: "freqs", Reason: "unknown frequency"}
		case !f.CoarserThan(c.BaseFreq):
			return &model.ConfigError{Field: "freqs", Reason: fmt.Sprintf("%s is not coarser than base %s", f, c.BaseFreq)}
		case seen[f]:
			return &model.ConfigError{Field: "freqs", Reason: "duplicate " + f.String()}
		}
		seen[f] = true
	}
	switch {
	case c.MaxBiNum < 1:
		return &model.ConfigError{Field: "max_bi_num", Reason: "must be positive"}
	case c.MinBiLen < 3:
		return &model.ConfigError{Field: "min_bi_len", Reason: "must be at least 3"}
	case c.MinBiGap < 0:
		return &model.ConfigError{Field: "min_bi_gap", Reason: "must not be negative"}
	case !c.XDMode.Valid():
		return &model.ConfigError{Field: "xd_mode", Reason: "unknown mode " + string(c.XDMode)}
	case !c.ZSSource.Valid():
		return &model.ConfigError{Field: "zs_source", Reason: "unknown source " + string(c.ZSSource)}
	case c.MaxCount < 1:
		return &model.ConfigError{Field: "max_count", Reason: "must be positive"}
	case c.Redis.DB < 0:
		return &model.ConfigError{Field: "redis.db", Reason: "must not be negative"}
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return &model.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	if _, err := indicator.ParseSpecs(c.Signals); err != nil {
		return &model.ConfigError{Field: "signals", Reason: err.Error()}
	}
	return nil
}

// Level returns the parsed log level, info if it does not parse.
func (c *Config) Level() slog.Level {
	l, _ := logger.ParseLevel(c.LogLevel)
	return l
}

// Engine returns the per-frequency engine settings. Signals that do not
// parse are left out; Validate reports them.
func (c *Config) Engine(log *slog.Logger) czsc.Config {
	ec := czsc.Config{
		MaxBiNum: c.MaxBiNum,
		MinBiLen: c.MinBiLen,
		MinBiGap: c.MinBiGap,
		XDMode:   c.XDMode,
		ZSSource: c.ZSSource,
		Verbose:  c.Verbose,
		Logger:   log,
	}
	if specs, err := indicator.ParseSpecs(c.Signals); err == nil && len(specs) > 0 {
		ec.Signals = []czsc.SignalFunc{indicator.Signal(specs...)}
	}
	return ec
}

// Trader returns the trader settings for symbol; an empty symbol falls back
// to the configured one.
func (c *Config) Trader(symbol string, m *metrics.Metrics, log *slog.Logger) trader.Config {
	if symbol == "" {
		symbol = c.Symbol
	}
	return trader.Config{
		Symbol:   symbol,
		Base:     c.BaseFreq,
		Freqs:    append([]freq.Freq(nil), c.Freqs...),
		MaxCount: c.MaxCount,
		CZSC:     c.Engine(log),
		Metrics:  m,
		Logger:   log,
	}
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Redis.Password != "" {
		out.Redis.Password = "***"
	}
	return yaml.Marshal(&out)
}
