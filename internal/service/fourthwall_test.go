package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/protocol6713/internal/domain"
)

func comaPair(t *testing.T, h *harness, requesterBalance int64) (requester, sleeper *domain.Account) {
	t.Helper()
	requester = h.account(t, "caller", requesterBalance)
	sleeper = h.account(t, "sleeper", 0)
	_, err := h.svc.EnterComa(context.Background(), sleeper.ID, domain.ComaChoice)
	require.NoError(t, err)
	return requester, sleeper
}

func TestRequestBreak_RejectForfeitsEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller, sleeper := comaPair(t, h, 150)

	req, err := h.svc.RequestBreak(ctx, caller.ID, sleeper.ID, "wake up")
	require.NoError(t, err)
	assert.Equal(t, int64(50), req.RemainingBalance)

	pending, err := h.svc.PendingBreaks(ctx, sleeper.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.RequestID, pending[0].ID)
	assert.Equal(t, "wake up", pending[0].Message)

	resp, err := h.svc.RespondBreak(ctx, sleeper.ID, req.RequestID, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, ActionReject, resp.Action)
	assert.Nil(t, resp.TalentsReceived)

	assert.Equal(t, int64(50), h.balance(t, caller.ID), "escrow is not refunded")
	assert.Zero(t, h.balance(t, sleeper.ID))

	pending, err = h.svc.PendingBreaks(ctx, sleeper.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRespondBreak_AcceptPaysRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller, sleeper := comaPair(t, h, 100)

	req, err := h.svc.RequestBreak(ctx, caller.ID, sleeper.ID, "urgent")
	require.NoError(t, err)
	assert.Zero(t, req.RemainingBalance)

	resp, err := h.svc.RespondBreak(ctx, sleeper.ID, req.RequestID, ActionAccept)
	require.NoError(t, err)
	require.NotNil(t, resp.TalentsReceived)
	assert.Equal(t, int64(FourthWallCost), *resp.TalentsReceived)
	assert.Equal(t, int64(100), h.balance(t, sleeper.ID))

	_, err = h.svc.RespondBreak(ctx, sleeper.ID, req.RequestID, ActionReject)
	requireKind(t, err, KindInvalidStateTransition, ErrRequestAlreadyResolved)
	assert.Equal(t, int64(100), h.balance(t, sleeper.ID))
}

func TestRespondBreak_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller, sleeper := comaPair(t, h, 100)

	req, err := h.svc.RequestBreak(ctx, caller.ID, sleeper.ID, "hello")
	require.NoError(t, err)

	_, err = h.svc.RespondBreak(ctx, caller.ID, req.RequestID, ActionAccept)
	requireKind(t, err, KindUnauthorized, ErrNotRecipient)

	_, err = h.svc.RespondBreak(ctx, sleeper.ID, req.RequestID, "maybe")
	requireKind(t, err, KindInvalidArgument, ErrInvalidAction)

	_, err = h.svc.RespondBreak(ctx, sleeper.ID, uuid.New(), ActionAccept)
	requireKind(t, err, KindNotFound, ErrRequestNotFound)
}

func TestRequestBreak_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller, sleeper := comaPair(t, h, 99)
	awake := h.account(t, "awake", 0)

	_, err := h.svc.RequestBreak(ctx, caller.ID, sleeper.ID, "hi")
	e := requireKind(t, err, KindInsufficientBalance, ErrInsufficientBalance)
	require.NotNil(t, e.Balance)
	assert.Equal(t, int64(99), *e.Balance)
	assert.Equal(t, int64(FourthWallCost), e.Required)

	_, err = h.svc.RequestBreak(ctx, caller.ID, awake.ID, "hi")
	requireKind(t, err, KindInvalidStateTransition, ErrTargetNotInComa)

	_, err = h.svc.RequestBreak(ctx, caller.ID, sleeper.ID, "   ")
	requireKind(t, err, KindInvalidArgument, ErrMessageRequired)

	_, err = h.svc.RequestBreak(ctx, sleeper.ID, sleeper.ID, "hi")
	requireKind(t, err, KindInvalidArgument, ErrSelfBreak)

	pending, err := h.svc.PendingBreaks(ctx, sleeper.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, int64(99), h.balance(t, caller.ID))
}
