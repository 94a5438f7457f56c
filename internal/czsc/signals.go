package czsc

import (
	"fmt"
	"log/slog"
	"maps"
)

// SignalFunc computes signals from the current state. It runs after every
// successful update; it must treat c as read-only.
type SignalFunc func(c *CZSC) (map[string]any, error)

// Signals returns a copy of the signals computed after the last update.
func (c *CZSC) Signals() map[string]any {
	return maps.Clone(c.signals)
}

// runSignals calls every configured signal function. A failing or
// panicking function is logged and skipped.
func (c *CZSC) runSignals() {
	if len(c.cfg.Signals) == 0 {
		return
	}
	out := make(map[string]any)
	for i, fn := range c.cfg.Signals {
		res, err := c.callSignal(fn)
		if err != nil {
			c.log.Warn("signal function failed",
				slog.String("symbol", c.symbol),
				slog.Int("index", i),
				slog.Any("error", err))
			if c.OnSignalError != nil {
				c.OnSignalError(i, err)
			}
			continue
		}
		maps.Copy(out, res)
	}
	c.signals = out
}

func (c *CZSC) callSignal(fn SignalFunc) (res map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("signal panic: %v", r)
		}
	}()
	return fn(c)
}
