package services

import (
	"math/rand"
	"sync"
	"time"
)

// Band boundaries for synthesized record timestamps, in percent of draws.
// Most records are written during or shortly after the visit; a small tail
// is written much later.
const (
	recordBandDuringCeiling = 15
	recordBandAroundCeiling = 65
	recordBandAfterCeiling  = 95
)

// RecordClock synthesizes plausible "recorded" and "printed" timestamps from
// a service time window using fixed probability bands. The randomness source
// is injected so tests can pin the distribution.
type RecordClock struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRecordClock constructs a clock from a seedable source. A nil source
// falls back to a time-seeded one.
func NewRecordClock(src rand.Source) *RecordClock {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &RecordClock{rng: rand.New(src)}
}

// RecordedAt draws a creation timestamp for a visit with the given service
// window. All draws land within [start-3m, end+60m]:
//
//	15%  just before the visit ends       [end-10m, end-1m]
//	50%  around the visit itself          [start-3m, end+3m]
//	30%  shortly after the visit          [end+3m, end+15m]
//	 5%  a late catch-up entry            exactly end+60m
func (c *RecordClock) RecordedAt(start, end time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.rng.Float64() * 100
	switch {
	case r <= recordBandDuringCeiling:
		return c.uniformBetween(end.Add(-10*time.Minute), end.Add(-time.Minute))
	case r <= recordBandAroundCeiling:
		return c.uniformBetween(start.Add(-3*time.Minute), end.Add(3*time.Minute))
	case r <= recordBandAfterCeiling:
		return c.uniformBetween(end.Add(3*time.Minute), end.Add(15*time.Minute))
	default:
		return end.Add(time.Hour)
	}
}

// PrintedAt draws a print timestamp one to seven days after the service
// date, at a uniform office-hours time of day [09:00:00, 18:00:00).
func (c *RecordClock) PrintedAt(serviceDate time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := serviceDate.AddDate(0, 0, 1+c.rng.Intn(7))
	hour := 9 + c.rng.Intn(9)
	minute := c.rng.Intn(60)
	second := c.rng.Intn(60)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, serviceDate.Location())
}

func (c *RecordClock) uniformBetween(from, to time.Time) time.Time {
	span := to.Sub(from)
	if span <= 0 {
		return from
	}
	return from.Add(time.Duration(c.rng.Float64() * float64(span)))
}
