package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	ts := t0.Add(d)
	return &ts
}

func TestCanPost_Boundary(t *testing.T) {
	last := &t0
	assert.False(t, CanPost(t0.Add(6999*time.Millisecond), last))
	assert.True(t, CanPost(t0.Add(7000*time.Millisecond), last))
	assert.True(t, CanPost(t0, nil), "never posted")
	assert.Equal(t, 2*time.Second, PostWait(t0.Add(5*time.Second), last))
}

func TestComaCooldownRemaining(t *testing.T) {
	exited := &t0
	assert.Equal(t, 24*time.Hour, ComaCooldownRemaining(t0, exited))
	assert.Equal(t, 4*time.Hour, ComaCooldownRemaining(t0.Add(20*time.Hour), exited))
	assert.Zero(t, ComaCooldownRemaining(t0.Add(24*time.Hour), exited))
	assert.Zero(t, ComaCooldownRemaining(t0.Add(100*time.Hour), exited))
	assert.Zero(t, ComaCooldownRemaining(t0, nil))
}

func TestRegenerateRefills(t *testing.T) {
	tests := []struct {
		name        string
		refills     int
		elapsed     time.Duration
		wantRefills int
		wantStamp   time.Time
		wantChanged bool
	}{
		{"under one period", 0, 23 * time.Hour, 0, t0, false},
		{"one period", 0, 24 * time.Hour, 1, t0.Add(24 * time.Hour), true},
		{"keeps partial progress", 1, 30 * time.Hour, 2, t0.Add(24 * time.Hour), true},
		{"ceiling after 240h", 0, 240 * time.Hour, 3, t0.Add(240 * time.Hour), true},
		{"exactly reaches cap", 1, 48 * time.Hour, 3, t0.Add(48 * time.Hour), true},
		{"already full", 3, 500 * time.Hour, 3, t0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stamp, changed := RegenerateRefills(t0.Add(tt.elapsed), tt.refills, t0)
			assert.Equal(t, tt.wantRefills, got)
			assert.Equal(t, tt.wantStamp, stamp)
			assert.Equal(t, tt.wantChanged, changed)
			assert.LessOrEqual(t, got, MaxRefills)
		})
	}
}

func TestConsumeRefill(t *testing.T) {
	now := t0.Add(90 * time.Hour)

	got, stamp := ConsumeRefill(now, 3, t0)
	assert.Equal(t, 2, got)
	assert.Equal(t, now, stamp, "full stock restarts the clock")

	got, stamp = ConsumeRefill(now, 2, t0)
	assert.Equal(t, 1, got)
	assert.Equal(t, t0, stamp)

	got, stamp = ConsumeRefill(now, 0, t0)
	assert.Equal(t, 0, got)
	assert.Equal(t, t0, stamp)
}

func TestConsumeThenRegenerate_NoInstantRefill(t *testing.T) {
	// A stock that sat full for ten days must not refill the moment one is used.
	now := t0.Add(240 * time.Hour)
	refills, stamp := ConsumeRefill(now, 3, t0)
	refills, _, changed := RegenerateRefills(now.Add(time.Hour), refills, stamp)
	assert.False(t, changed)
	assert.Equal(t, 2, refills)
}

func TestShrineEditCost(t *testing.T) {
	assert.Equal(t, int64(0), ShrineEditCost(t0, nil))
	assert.Equal(t, int64(ShrineEditFee), ShrineEditCost(t0.Add(23*time.Hour), &t0))
	assert.Equal(t, int64(0), ShrineEditCost(t0.Add(24*time.Hour), &t0))
}

func TestSelfKillWindow(t *testing.T) {
	d := at(0)
	assert.Equal(t, 72*time.Hour, SelfKillRemaining(t0, d))
	assert.Equal(t, 2*time.Hour, SelfKillRemaining(t0.Add(70*time.Hour), d))
	assert.False(t, PurgeDue(t0.Add(71*time.Hour+59*time.Minute), d))
	assert.True(t, PurgeDue(t0.Add(72*time.Hour), d))
	assert.False(t, PurgeDue(t0.Add(1000*time.Hour), nil))
}

func TestDisplayCeilings(t *testing.T) {
	assert.Equal(t, "12", FormatLikeCount(12))
	assert.Equal(t, "13+", FormatLikeCount(13))
	assert.Equal(t, "13+", FormatLikeCount(4000))
	assert.Equal(t, "66", FormatViewerCount(66))
	assert.Equal(t, "67+", FormatViewerCount(67))

	require.True(t, IsLikeCountCapped(13))
	require.False(t, IsLikeCountCapped(12))
	require.True(t, IsViewerCountCapped(67))
	require.False(t, IsViewerCountCapped(66))
}
