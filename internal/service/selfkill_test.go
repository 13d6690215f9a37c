package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

func TestSelfKill_Announces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 20)

	require.NoError(t, h.svc.SelfKill(ctx, a.ID, "so long", shrine))

	got := h.get(t, a.ID)
	assert.Equal(t, domain.StateSelfKilled, got.State)
	assert.Equal(t, "so long", got.ShrineMessage)
	assert.Equal(t, shrine, got.ShrineLink)
	assert.Equal(t, int64(20), got.Balance, "balance stays until purge")
	require.NotNil(t, got.DeactivatedAt)
	assert.True(t, t0.Equal(*got.DeactivatedAt))

	top := h.feed(t)[0]
	assert.True(t, top.Permanent)
	assert.Equal(t, "USER NOVA HAS SELF-KILLED THEIR ACCOUNT. THE SHRINE STANDS FOR 72 HOURS.", top.Content)

	err := h.svc.SelfKill(ctx, a.ID, "again", "")
	requireKind(t, err, KindInvalidStateTransition, ErrAlreadySelfKilled)
}

func TestSelfKill_RejectedInComa(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 0)
	_, err := h.svc.EnterComa(ctx, a.ID, domain.ComaQuest)
	require.NoError(t, err)

	err = h.svc.SelfKill(ctx, a.ID, "bye", "")
	requireKind(t, err, KindInvalidStateTransition, ErrSelfKillInComa)
	assert.Equal(t, domain.StateComa, h.get(t, a.ID).State)
}

func TestSelfKillStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.account(t, "nova", 0)

	status, err := h.svc.SelfKillStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.False(t, status.EligibleForPurge)

	require.NoError(t, h.svc.SelfKill(ctx, a.ID, "", ""))
	h.clock.Advance(2 * time.Hour)

	status, err = h.svc.SelfKillStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.InDelta(t, 70.0, status.HoursRemaining, 0.001)
	assert.False(t, status.EligibleForPurge)

	h.clock.Advance(70 * time.Hour)
	status, err = h.svc.SelfKillStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Zero(t, status.HoursRemaining)
	assert.True(t, status.EligibleForPurge)
}

func TestPurgeGhosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	early := h.account(t, "early", 30)
	late := h.account(t, "late", 5)
	alive := h.account(t, "alive", 10)

	require.NoError(t, h.svc.SelfKill(ctx, early.ID, "first", shrine))
	h.clock.Advance(time.Hour)
	require.NoError(t, h.svc.SelfKill(ctx, late.ID, "second", shrine))

	h.clock.Advance(70 * time.Hour)
	res, err := h.svc.PurgeGhosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Purged, "71h is still inside the shrine window")

	h.clock.Advance(time.Hour)
	res, err = h.svc.PurgeGhosts(ctx)
	require.NoError(t, err)
	require.Len(t, res.Purged, 1)
	assert.Equal(t, early.ID, res.Purged[0])
	assert.Equal(t, int64(30), res.Forfeited)

	got := h.get(t, early.ID)
	assert.Equal(t, domain.StateGhostDeleted, got.State)
	assert.Zero(t, got.Balance)
	assert.Empty(t, got.ShrineLink)
	assert.Empty(t, got.ShrineMessage)

	_, err = h.svc.GetAccount(ctx, early.ID)
	requireKind(t, err, KindNotFound, ErrAccountNotFound)
	_, err = h.svc.GiveCPR(ctx, early.ID, alive.ID)
	requireKind(t, err, KindNotFound, ErrAccountNotFound)

	var txs []domain.Transaction
	require.NoError(t, h.store.WithTx(ctx, func(tx store.Tx) error {
		txs, err = tx.ListTransactions(ctx, early.ID, 10)
		return err
	}))
	require.NotEmpty(t, txs)
	assert.Equal(t, domain.KindForfeit, txs[0].Kind)

	h.clock.Advance(time.Hour)
	res, err = h.svc.PurgeGhosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{late.ID}, res.Purged)
	assert.Equal(t, int64(5), res.Forfeited)
	assert.Equal(t, domain.StateActive, h.get(t, alive.ID).State)
}
