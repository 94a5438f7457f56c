package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrOrdering = errors.New("ordering error")
	ErrConfig   = errors.New("config error")
	ErrData     = errors.New("data error")
	ErrState    = errors.New("state error")
)

// OrderingError reports a bar older than the last accepted one.
type OrderingError struct {
	Last time.Time
	Got  time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("bar dt %s is before last accepted %s",
		e.Got.Format(time.DateTime), e.Last.Format(time.DateTime))
}

func (e *OrderingError) Is(target error) bool { return target == ErrOrdering }

// ConfigError reports an invalid construction-time setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// DataError reports a malformed bar.
type DataError struct {
	DT     time.Time
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad bar at %s: %s", e.DT.Format(time.DateTime), e.Reason)
}

func (e *DataError) Is(target error) bool { return target == ErrData }

// StateError reports a concurrent or re-entrant update.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "state error: " + e.Reason
}

func (e *StateError) Is(target error) bool { return target == ErrState }
