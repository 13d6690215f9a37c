package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

var ErrSelfBreak = errors.New("cannot break your own fourth wall")

const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// RequestBreak escrows FourthWallCost Talents with the house and opens a
// pending request to reach an account in COMA.
func (s *Service) RequestBreak(ctx context.Context, requesterID, comaID uuid.UUID, message string) (*models.BreakRequestResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, newError(KindInvalidArgument, ErrMessageRequired)
	}
	if requesterID == comaID {
		return nil, newError(KindInvalidArgument, ErrSelfBreak)
	}

	var resp *models.BreakRequestResponse
	err := s.run(ctx, "request_break", func(u *unit) error {
		accounts, err := u.lock(ctx, requesterID, comaID)
		if err != nil {
			return err
		}
		requester, target := accounts[requesterID], accounts[comaID]
		if requester == nil || target == nil {
			return newError(KindNotFound, ErrAccountNotFound)
		}
		if requester.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		if !target.InComa() {
			return newError(KindInvalidStateTransition, ErrTargetNotInComa)
		}

		res, err := u.move(ctx, requesterID, domain.House, FourthWallCost, domain.KindFourthWallBreak, "fourth wall escrow", "")
		if err != nil {
			return err
		}
		b := &domain.BreakRequest{
			ID:          uuid.New(),
			ComaID:      comaID,
			RequesterID: requesterID,
			Message:     message,
			Status:      domain.BreakPending,
			CreatedAt:   u.now,
		}
		if err := u.InsertBreak(ctx, b); err != nil {
			return err
		}
		resp = &models.BreakRequestResponse{RequestID: b.ID, RemainingBalance: res.fromBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RespondBreak resolves a pending request. Accepting pays the escrow to the
// COMA account; rejecting leaves it with the house.
func (s *Service) RespondBreak(ctx context.Context, responderID, requestID uuid.UUID, action string) (*models.RespondBreakResponse, error) {
	var status domain.BreakStatus
	switch action {
	case ActionAccept:
		status = domain.BreakAccepted
	case ActionReject:
		status = domain.BreakRejected
	default:
		return nil, newError(KindInvalidArgument, ErrInvalidAction)
	}

	var resp *models.RespondBreakResponse
	err := s.run(ctx, "respond_break", func(u *unit) error {
		b, err := u.LockBreak(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return newError(KindNotFound, ErrRequestNotFound)
			}
			return err
		}
		if b.ComaID != responderID {
			return newError(KindUnauthorized, ErrNotRecipient)
		}
		if b.Status != domain.BreakPending {
			return newError(KindInvalidStateTransition, ErrRequestAlreadyResolved)
		}

		resp = &models.RespondBreakResponse{Action: action}
		if status == domain.BreakAccepted {
			if _, err := u.lockOne(ctx, b.ComaID); err != nil {
				return err
			}
			if _, err := u.move(ctx, domain.House, b.ComaID, FourthWallCost, domain.KindFourthWallBreak, "fourth wall accepted", ""); err != nil {
				return err
			}
			received := int64(FourthWallCost)
			resp.TalentsReceived = &received
		}

		ok, err := u.ResolveBreak(ctx, requestID, status, u.now)
		if err != nil {
			return err
		}
		if !ok {
			return newError(KindInvalidStateTransition, ErrRequestAlreadyResolved)
		}
		u.after(func() { breakResolutionsTotal.WithLabelValues(string(status)).Inc() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PendingBreaks lists the unresolved requests addressed to an account.
func (s *Service) PendingBreaks(ctx context.Context, comaID uuid.UUID) ([]domain.BreakRequest, error) {
	var out []domain.BreakRequest
	err := s.run(ctx, "pending_breaks", func(u *unit) error {
		if _, err := u.read(ctx, comaID); err != nil {
			return err
		}
		var err error
		out, err = u.ListPendingBreaks(ctx, comaID)
		return err
	})
	return out, err
}
