package detector

import "time"

const (
	SoundCooldown  = 800 * time.Millisecond
	HapticCooldown = 500 * time.Millisecond
)

// Cooldown rate-limits a repeated action. The zero time means "never fired".
type Cooldown struct {
	Interval time.Duration
	last     time.Time
}

// Ready reports whether at least Interval has passed since the last use and,
// if so, marks now as the last use.
func (c *Cooldown) Ready(now time.Time) bool {
	if !c.last.IsZero() && now.Sub(c.last) < c.Interval {
		return false
	}
	c.last = now
	return true
}
