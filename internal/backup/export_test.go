package backup

import "time"

// SetNewTicker replaces the scheduler's ticker factory for external tests.
func SetNewTicker(s *Scheduler, f func(d time.Duration) (<-chan time.Time, func())) {
	s.newTicker = f
}
