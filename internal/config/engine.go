package config

import "time"

// Lock backends.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// EngineConfig tunes the booking engine.
type EngineConfig struct {
	PeakStartHour    int
	PeakEndHour      int
	PeakMaxDuration  int // minutes
	SlotInterval     int // minutes
	DefaultDuration  int // minutes
	AvailabilityTTL  time.Duration
	RecurringHorizon int // days
	LockBackend      string
	LockTTL          time.Duration
}

// LoadEngineConfig reads the engine settings.  Out-of-range values fall
// back to the defaults.
func LoadEngineConfig() EngineConfig {
	cfg := EngineConfig{
		PeakStartHour:    envInt("PEAK_START_HOUR", 18),
		PeakEndHour:      envInt("PEAK_END_HOUR", 21),
		PeakMaxDuration:  envInt("PEAK_MAX_DURATION_MIN", 120),
		SlotInterval:     envInt("SLOT_INTERVAL_MIN", 30),
		DefaultDuration:  envInt("DEFAULT_DURATION_MIN", 90),
		AvailabilityTTL:  envDur("AVAILABILITY_CACHE_TTL", 5*time.Minute),
		RecurringHorizon: envInt("RECURRING_HORIZON_DAYS", 14),
		LockBackend:      envStr("LOCK_BACKEND", LockMemory),
		LockTTL:          envDur("LOCK_TTL", 10*time.Second),
	}
	if cfg.PeakStartHour < 0 || cfg.PeakStartHour > 23 || cfg.PeakEndHour <= cfg.PeakStartHour || cfg.PeakEndHour > 24 {
		cfg.PeakStartHour, cfg.PeakEndHour = 18, 21
	}
	if cfg.PeakMaxDuration < 30 {
		cfg.PeakMaxDuration = 120
	}
	if cfg.SlotInterval < 5 {
		cfg.SlotInterval = 30
	}
	if cfg.DefaultDuration < 30 || cfg.DefaultDuration > 240 {
		cfg.DefaultDuration = 90
	}
	if cfg.RecurringHorizon < 0 {
		cfg.RecurringHorizon = 14
	}
	if cfg.LockBackend != LockRedis {
		cfg.LockBackend = LockMemory
	}
	return cfg
}
