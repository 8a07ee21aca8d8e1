package backup

import (
	"errors"
	"fmt"
	"time"
)

// ExitThreshold is the elapsed time after which an exit check takes a
// backup, whatever the configured interval.
const ExitThreshold = 6 * time.Hour

// Trigger identifies what asked for a backup check.
type Trigger int

const (
	TriggerStartup Trigger = iota + 1
	TriggerPeriodic
	TriggerExit
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerStartup:
		return "startup"
	case TriggerPeriodic:
		return "periodic"
	case TriggerExit:
		return "exit"
	case TriggerManual:
		return "manual"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Automatic reports whether the trigger fires without a user asking for it.
func (t Trigger) Automatic() bool {
	return t != TriggerManual
}

// Policy is the backup configuration. It is fixed for the lifetime of a Scheduler.
type Policy struct {
	Enabled            bool
	Interval           time.Duration
	MaxRetained        int
	MinSourceSizeBytes int64
	OnStart            bool
	OnExit             bool
	CheckInterval      time.Duration
}

// DefaultPolicy returns a daily policy that keeps ten artifacts.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:            true,
		Interval:           24 * time.Hour,
		MaxRetained:        10,
		MinSourceSizeBytes: 1024,
		OnStart:            true,
		OnExit:             true,
		CheckInterval:      time.Hour,
	}
}

// Validate checks the policy's numeric settings.
func (p Policy) Validate() error {
	var errs []error
	if p.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", p.Interval))
	}
	if p.MaxRetained < 1 {
		errs = append(errs, fmt.Errorf("max retained must be at least 1, got %d", p.MaxRetained))
	}
	if p.MinSourceSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("min source size must not be negative, got %d", p.MinSourceSizeBytes))
	}
	if p.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("check interval must be positive, got %s", p.CheckInterval))
	}
	return errors.Join(errs...)
}

// ShouldBackup decides whether a backup is due. A zero last means no backup
// exists yet. Startup and periodic checks wait for the full interval; exit
// checks use ExitThreshold instead; manual requests always proceed.
func ShouldBackup(last, now time.Time, interval time.Duration, trigger Trigger) bool {
	if trigger == TriggerManual || last.IsZero() {
		return true
	}

	elapsed := now.Sub(last)
	if trigger == TriggerExit {
		return elapsed > ExitThreshold
	}
	return elapsed >= interval
}
