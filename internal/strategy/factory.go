package strategy

import (
	"errors"
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
)

// Policy types accepted by FromConfig.
const (
	TypeTimeExit     = "time_exit"
	TypeHoldToSettle = "hold_to_settle"
	TypeStopLoss     = "stop_loss"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrMissingHold         = errors.New("time_exit/stop_loss requires hold")
	ErrMissingStopPct      = errors.New("stop_loss requires stop_pct in (0, 1)")
)

// Config describes an exit policy.
type Config struct {
	Type    string        `yaml:"type"`
	Hold    time.Duration `yaml:"hold"` // max hold, or settlement fallback for hold_to_settle
	StopPct float64       `yaml:"stop_pct"`
}

// DefaultConfigs returns the exit policy per signal kind.
func DefaultConfigs() map[domain.SignalKind]Config {
	return map[domain.SignalKind]Config{
		domain.KindReversion:   {Type: TypeTimeExit, Hold: 24 * time.Hour},
		domain.KindImpliedProb: {Type: TypeTimeExit, Hold: 12 * time.Hour},
		domain.KindMention:     {Type: TypeHoldToSettle, Hold: 24 * time.Hour},
	}
}

// FromConfig creates a Policy from cfg.
// Validates required parameters per policy type.
func FromConfig(cfg Config) (Policy, error) {
	switch cfg.Type {
	case TypeTimeExit:
		if cfg.Hold <= 0 {
			return nil, ErrMissingHold
		}
		return NewTimeExit(cfg.Hold), nil
	case TypeHoldToSettle:
		fallback := cfg.Hold
		if fallback <= 0 {
			fallback = 24 * time.Hour
		}
		return NewHoldToSettle(fallback), nil
	case TypeStopLoss:
		if cfg.StopPct <= 0 || cfg.StopPct >= 1 {
			return nil, ErrMissingStopPct
		}
		if cfg.Hold <= 0 {
			return nil, ErrMissingHold
		}
		return NewStopLoss(cfg.StopPct, cfg.Hold), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, cfg.Type)
	}
}

// SetFromConfig builds a Set from per-kind configs.
func SetFromConfig(cfgs map[domain.SignalKind]Config) (Set, error) {
	set := make(Set, len(cfgs))
	for kind, cfg := range cfgs {
		p, err := FromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("exit policy %s: %w", kind, err)
		}
		set[kind] = p
	}
	return set, nil
}
