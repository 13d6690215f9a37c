package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/notify"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

var ErrSelfRescue = errors.New("cannot give cpr to yourself")

// displayCount maps a running total onto 1..13 within its batch.
func displayCount(total int64) int64 {
	if n := total % notify.CPRBatchSize; n != 0 {
		return n
	}
	return notify.CPRBatchSize
}

// GiveCPR charges the rescuer CPRCost and records one rescue in the ghost's
// current batch. The ghost row is locked so concurrent rescues of one ghost
// serialise and every batch holds exactly 13 entries.
func (s *Service) GiveCPR(ctx context.Context, ghostID, rescuerID uuid.UUID) (*models.GiveCPRResponse, error) {
	if ghostID == rescuerID {
		return nil, newError(KindInvalidArgument, ErrSelfRescue)
	}

	var resp *models.GiveCPRResponse
	err := s.run(ctx, "give_cpr", func(u *unit) error {
		accounts, err := u.lock(ctx, ghostID, rescuerID)
		if err != nil {
			return err
		}
		ghost, rescuer := accounts[ghostID], accounts[rescuerID]
		if ghost == nil || rescuer == nil {
			return newError(KindNotFound, ErrAccountNotFound)
		}
		if !ghost.IsGhost() {
			return newError(KindInvalidStateTransition, ErrNotAGhost)
		}
		if rescuer.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		if rescuer.Balance < CPRCost {
			return insufficient(rescuer.Balance, CPRCost)
		}

		total, err := u.CountRescues(ctx, ghostID)
		if err != nil {
			return err
		}
		batch := total / notify.CPRBatchSize

		err = u.InsertRescue(ctx, &domain.Rescue{GhostID: ghostID, RescuerID: rescuerID, Batch: batch, CreatedAt: u.now})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return newError(KindInvalidStateTransition, ErrAlreadyRescued)
			}
			return err
		}
		res, err := u.move(ctx, rescuerID, domain.House, CPRCost, domain.KindCPR, "cpr for "+ghost.DisplayName(), "")
		if err != nil {
			return err
		}

		count := displayCount(total + 1)
		resp = &models.GiveCPRResponse{
			DisplayCount:       count,
			BatchNumber:        (total + 1) / notify.CPRBatchSize,
			RemainingBalance:   res.fromBalance,
			RevelationComplete: count == notify.CPRBatchSize,
		}
		if resp.RevelationComplete {
			u.after(cprBatchesTotal.Inc)
			return u.feed(ctx, notify.CPRBatchComplete(ghost.DisplayName(), rescuer.DisplayName()))
		}
		return u.feed(ctx, notify.CPRProgress(ghost.DisplayName(), rescuer.DisplayName(), count))
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// batchSizes counts rescues per batch.
func batchSizes(rescues []domain.Rescue) map[int64]int {
	sizes := make(map[int64]int)
	for _, r := range rescues {
		sizes[r.Batch]++
	}
	return sizes
}

// accessibleBatch returns the oldest completed batch in which rescuer holds
// an unviewed entry.
func accessibleBatch(rescues []domain.Rescue, rescuerID uuid.UUID) (int64, bool) {
	sizes := batchSizes(rescues)
	for _, r := range rescues {
		if r.RescuerID == rescuerID && !r.ShrineViewed && sizes[r.Batch] >= notify.CPRBatchSize {
			return r.Batch, true
		}
	}
	return 0, false
}

// CPRStatus reports the ghost's batch progress. With a non-nil rescuer it
// also reports whether that rescuer may reveal the shrine link; the link is
// included only while the reveal is available.
func (s *Service) CPRStatus(ctx context.Context, ghostID, rescuerID uuid.UUID) (*models.CPRStatusResponse, error) {
	var resp *models.CPRStatusResponse
	err := s.run(ctx, "cpr_status", func(u *unit) error {
		ghost, err := u.read(ctx, ghostID)
		if err != nil {
			return err
		}
		rescues, err := u.ListRescues(ctx, ghostID)
		if err != nil {
			return err
		}

		total := int64(len(rescues))
		resp = &models.CPRStatusResponse{
			Count:        total % notify.CPRBatchSize,
			BatchNumber:  total / notify.CPRBatchSize,
			TotalRescues: total,
		}
		if domain.IsHouse(rescuerID) {
			return nil
		}
		if batch, ok := accessibleBatch(rescues, rescuerID); ok {
			resp.CanAccessShrine = true
			resp.AccessibleBatch = &batch
			resp.ShrineLink = ghost.ShrineLink
		}
		return nil
	})
	return resp, err
}

// MarkShrineViewed consumes the rescuer's one-time reveal for a completed
// batch and returns the shrine link.
func (s *Service) MarkShrineViewed(ctx context.Context, ghostID, rescuerID uuid.UUID, batch int64) (string, error) {
	var link string
	err := s.run(ctx, "mark_shrine_viewed", func(u *unit) error {
		ghost, err := u.lockOne(ctx, ghostID)
		if err != nil {
			return err
		}
		rescues, err := u.ListRescues(ctx, ghostID)
		if err != nil {
			return err
		}

		var entry *domain.Rescue
		for i := range rescues {
			if rescues[i].RescuerID == rescuerID && rescues[i].Batch == batch {
				entry = &rescues[i]
				break
			}
		}
		switch {
		case entry == nil:
			return newError(KindNotFound, ErrRescueNotFound)
		case batchSizes(rescues)[batch] < notify.CPRBatchSize:
			return newError(KindInvalidStateTransition, ErrBatchIncomplete)
		case entry.ShrineViewed:
			return newError(KindInvalidStateTransition, ErrShrineAlreadyViewed)
		}

		ok, err := u.MarkRescueViewed(ctx, ghostID, rescuerID, batch, u.now)
		if err != nil {
			return err
		}
		if !ok {
			return newError(KindInvalidStateTransition, ErrShrineAlreadyViewed)
		}
		link = ghost.ShrineLink
		return nil
	})
	return link, err
}
