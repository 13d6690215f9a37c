package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/protocol6713/internal/domain"
)

func TestEnterComa_UsesRefillFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 80)

	resp, err := h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	require.NoError(t, err)
	assert.True(t, resp.UsedRefill)
	assert.Equal(t, 2, resp.RefillsRemaining)
	assert.Equal(t, int64(80), resp.TalentBalance)

	got := h.get(t, a.ID)
	assert.Equal(t, domain.StateComa, got.State)
	assert.Equal(t, domain.ComaChoice, got.ComaReason)
	require.NotNil(t, got.ComaEnteredAt)
	assert.True(t, t0.Equal(*got.ComaEnteredAt))
	assert.True(t, t0.Equal(got.RefillsUpdatedAt), "taking from a full stock starts the regeneration clock")

	feed := h.feed(t)
	require.NotEmpty(t, feed)
	assert.Contains(t, feed[0].Content, "VOLUNTARY COMA")
	assert.Equal(t, domain.SystemActor, feed[0].AuthorID)
}

func TestEnterComa_PaysWhenOutOfRefills(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	poor := h.account(t, "poor", 49)
	rich := h.account(t, "rich", 50)
	for _, id := range []*domain.Account{poor, rich} {
		h.mutate(t, id.ID, func(a *domain.Account) {
			a.ComaRefills = 0
			a.RefillsUpdatedAt = t0
		})
	}

	_, err := h.svc.EnterComa(ctx, poor.ID, domain.ComaQuest)
	e := requireKind(t, err, KindInsufficientResources, ErrInsufficientResources)
	require.NotNil(t, e.Balance)
	assert.Equal(t, int64(49), *e.Balance)
	assert.Equal(t, int64(ComaEntryCost), e.Required)
	assert.Equal(t, domain.StateActive, h.get(t, poor.ID).State)

	resp, err := h.svc.EnterComa(ctx, rich.ID, domain.ComaQuest)
	require.NoError(t, err)
	assert.False(t, resp.UsedRefill)
	assert.Zero(t, resp.TalentBalance)
	assert.Zero(t, resp.RefillsRemaining)
	assert.Equal(t, domain.StateComa, h.get(t, rich.ID).State)

	txs, err := h.svc.Transactions(ctx, rich.ID, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.KindComaEntry, txs[0].Kind)
	assert.Equal(t, domain.House, txs[0].To)
}

func TestEnterComa_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 0)

	_, err := h.svc.EnterComa(ctx, a.ID, "Nap")
	requireKind(t, err, KindInvalidArgument, ErrInvalidReason)

	_, err = h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	require.NoError(t, err)
	_, err = h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	requireKind(t, err, KindInvalidStateTransition, ErrAlreadyInComa)
}

func TestComaReentryCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 0)

	_, err := h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	require.NoError(t, h.svc.ExitComa(ctx, a.ID))

	h.clock.Advance(20 * time.Hour)
	_, err = h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	e := requireKind(t, err, KindCooldownActive, ErrComaCooldown)
	assert.Equal(t, 4*time.Hour, e.CooldownRemaining)

	status, err := h.svc.ComaStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.CanEnter)
	assert.InDelta(t, 4.0, status.CooldownHoursRemaining, 0.001)

	h.clock.Advance(4 * time.Hour)
	_, err = h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	require.NoError(t, err)
}

func TestExitComa(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 0)

	err := h.svc.ExitComa(ctx, a.ID)
	requireKind(t, err, KindInvalidStateTransition, ErrNotInComa)

	_, err = h.svc.EnterComa(ctx, a.ID, domain.ComaQuest)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	require.NoError(t, h.svc.ExitComa(ctx, a.ID))

	got := h.get(t, a.ID)
	assert.Equal(t, domain.StateActive, got.State)
	require.NotNil(t, got.ComaExitedAt)
	assert.True(t, t0.Add(time.Minute).Equal(*got.ComaExitedAt))
	assert.Contains(t, h.feed(t)[0].Content, "RETURNED FROM COMA")
}

func TestComaStatus_RefillCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 10)
	h.mutate(t, a.ID, func(acc *domain.Account) {
		acc.ComaRefills = 0
		acc.RefillsUpdatedAt = t0
	})

	h.clock.Advance(240 * time.Hour)
	status, err := h.svc.ComaStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Refills)
	assert.True(t, status.CanEnter)
	assert.False(t, status.InComa)
	assert.Equal(t, int64(10), status.Balance)

	got := h.get(t, a.ID)
	assert.Equal(t, 3, got.ComaRefills, "regeneration is persisted")
	assert.True(t, t0.Add(240*time.Hour).Equal(got.RefillsUpdatedAt))
}

func TestComaStatus_PartialRegeneration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 0)
	h.mutate(t, a.ID, func(acc *domain.Account) {
		acc.ComaRefills = 0
		acc.RefillsUpdatedAt = t0
	})

	h.clock.Advance(30 * time.Hour)
	status, err := h.svc.ComaStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Refills)
	assert.True(t, t0.Add(24*time.Hour).Equal(h.get(t, a.ID).RefillsUpdatedAt), "partial progress is kept")

	_, err = h.svc.EnterComa(ctx, a.ID, domain.ComaChoice)
	require.NoError(t, err)
	status, err = h.svc.ComaStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, status.InComa)
	assert.Equal(t, domain.ComaChoice, status.Reason)
	assert.Zero(t, status.Refills)
	assert.False(t, status.CanEnter)
}
