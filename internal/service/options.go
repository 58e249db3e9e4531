package service

import (
	"math/rand"
	"time"
)

// Options engine tuning, built once at startup.
type Options struct {
	// DeclineExclusion how long an explicit decline keeps the two players apart.
	DeclineExclusion time.Duration
	// TierSearchReach how many tiers above their own a player may search.
	TierSearchReach int
	// RankedDailySetLimit ranked sets two players may play against each other per UTC day.
	RankedDailySetLimit int
	// MatchRetryAttempts scans retried after losing a pairing race.
	MatchRetryAttempts int
	// MatchLockTTL lifetime of the per-guild scan lock.
	MatchLockTTL time.Duration

	Now    func() time.Time
	Random func(n int) int
}

func DefaultOptions() Options {
	return Options{
		DeclineExclusion:    45 * time.Minute,
		TierSearchReach:     1,
		RankedDailySetLimit: 2,
		MatchRetryAttempts:  3,
		MatchLockTTL:        5 * time.Second,
		Now:                 time.Now,
		Random:              rand.Intn,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DeclineExclusion <= 0 {
		o.DeclineExclusion = d.DeclineExclusion
	}
	if o.TierSearchReach < 0 {
		o.TierSearchReach = d.TierSearchReach
	}
	if o.RankedDailySetLimit <= 0 {
		o.RankedDailySetLimit = d.RankedDailySetLimit
	}
	if o.MatchRetryAttempts <= 0 {
		o.MatchRetryAttempts = d.MatchRetryAttempts
	}
	if o.MatchLockTTL <= 0 {
		o.MatchLockTTL = d.MatchLockTTL
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.Random == nil {
		o.Random = d.Random
	}
	return o
}

// startOfDay UTC midnight of t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
