// Package cooldown holds the wall-clock gates and display ceilings of the
// Talent economy. Every function is pure: callers pass "now" and the stored
// timestamps, nothing here reads the clock or the store.
package cooldown

import (
	"strconv"
	"time"
)

const (
	PostInterval = 7 * time.Second

	ComaReentryLockout = 24 * time.Hour
	RefillPeriod       = 24 * time.Hour
	MaxRefills         = 3

	ShrineEditWindow = 24 * time.Hour
	ShrineEditFee    = 10

	SelfKillLockout = 72 * time.Hour

	LikeCeiling   = 13
	ViewerCeiling = 67
)

// remaining returns how much of window is left since the event at last.
// A nil timestamp means the event never happened and nothing is left.
func remaining(now time.Time, last *time.Time, window time.Duration) time.Duration {
	if last == nil {
		return 0
	}
	left := window - now.Sub(*last)
	if left < 0 {
		return 0
	}
	return left
}

// CanPost gates wall posts: true once PostInterval has elapsed (inclusive).
func CanPost(now time.Time, lastPostAt *time.Time) bool {
	return PostWait(now, lastPostAt) == 0
}

// PostWait is the time left before the next post is allowed.
func PostWait(now time.Time, lastPostAt *time.Time) time.Duration {
	return remaining(now, lastPostAt, PostInterval)
}

// ComaCooldownRemaining is max(0, 24h - (now - exitedAt)).
func ComaCooldownRemaining(now time.Time, exitedAt *time.Time) time.Duration {
	return remaining(now, exitedAt, ComaReentryLockout)
}

// RegenerateRefills adds one refill per full RefillPeriod since lastUpdated,
// never exceeding MaxRefills. The returned timestamp only moves when refills
// increase: by whole periods while below the cap (keeping partial progress),
// or to now when the cap is reached.
func RegenerateRefills(now time.Time, refills int, lastUpdated time.Time) (int, time.Time, bool) {
	if refills >= MaxRefills {
		return MaxRefills, lastUpdated, false
	}
	elapsed := now.Sub(lastUpdated)
	if elapsed < RefillPeriod {
		return refills, lastUpdated, false
	}
	periods := int64(elapsed / RefillPeriod)
	missing := int64(MaxRefills - refills)
	if periods >= missing {
		return MaxRefills, now, true
	}
	return refills + int(periods), lastUpdated.Add(time.Duration(periods) * RefillPeriod), true
}

// ConsumeRefill takes one refill. Regeneration is idle while the stock is
// full, so taking from a full stock starts the regeneration clock at now.
func ConsumeRefill(now time.Time, refills int, lastUpdated time.Time) (int, time.Time) {
	if refills <= 0 {
		return 0, lastUpdated
	}
	if refills >= MaxRefills {
		return MaxRefills - 1, now
	}
	return refills - 1, lastUpdated
}

// ShrineEditFree reports whether the free daily shrine edit is available.
func ShrineEditFree(now time.Time, lastEditAt *time.Time) bool {
	return remaining(now, lastEditAt, ShrineEditWindow) == 0
}

// ShrineEditCost is 0 for the free daily edit and ShrineEditFee otherwise.
func ShrineEditCost(now time.Time, lastEditAt *time.Time) int64 {
	if ShrineEditFree(now, lastEditAt) {
		return 0
	}
	return ShrineEditFee
}

// SelfKillRemaining is the time left in the 72h shrine window.
func SelfKillRemaining(now time.Time, deactivatedAt *time.Time) time.Duration {
	return remaining(now, deactivatedAt, SelfKillLockout)
}

// PurgeDue reports whether a ghost's shrine window has fully elapsed.
func PurgeDue(now time.Time, deactivatedAt *time.Time) bool {
	return deactivatedAt != nil && now.Sub(*deactivatedAt) >= SelfKillLockout
}

// Hours renders a duration as fractional hours for API payloads.
func Hours(d time.Duration) float64 { return d.Hours() }

func FormatLikeCount(n int64) string   { return capped(n, LikeCeiling) }
func FormatViewerCount(n int64) string { return capped(n, ViewerCeiling) }

func IsLikeCountCapped(n int64) bool   { return n >= LikeCeiling }
func IsViewerCountCapped(n int64) bool { return n >= ViewerCeiling }

func capped(n, ceiling int64) string {
	if n >= ceiling {
		return strconv.FormatInt(ceiling, 10) + "+"
	}
	return strconv.FormatInt(n, 10)
}
