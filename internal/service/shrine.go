package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/cooldown"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
)

// EditShrine updates the shrine link and message. One edit per
// cooldown.ShrineEditWindow is free, others cost cooldown.ShrineEditFee.
// Either kind of edit restarts the window.
func (s *Service) EditShrine(ctx context.Context, accountID uuid.UUID, link, message string) (*models.EditShrineResponse, error) {
	var resp *models.EditShrineResponse
	err := s.run(ctx, "edit_shrine", func(u *unit) error {
		a, err := u.lockOne(ctx, accountID)
		if err != nil {
			return err
		}
		if a.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}

		resp = &models.EditShrineResponse{RemainingBalance: a.Balance}
		if cost := cooldown.ShrineEditCost(u.now, a.LastShrineEditAt); cost > 0 {
			res, err := u.move(ctx, a.ID, domain.House, cost, domain.KindShrineEdit, "shrine edit", "")
			if err != nil {
				return err
			}
			resp.Cost = cost
			resp.RemainingBalance = res.fromBalance
		}

		a.ShrineLink = link
		a.ShrineMessage = message
		a.LastShrineEditAt = &u.now
		resp.NextFreeEditAt = u.now.Add(cooldown.ShrineEditWindow)
		return u.SaveAccount(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ShrineEditCost reports the price of the account's next shrine edit.
func (s *Service) ShrineEditCost(ctx context.Context, accountID uuid.UUID) (*models.ShrineCostResponse, error) {
	var resp *models.ShrineCostResponse
	err := s.run(ctx, "shrine_edit_cost", func(u *unit) error {
		a, err := u.read(ctx, accountID)
		if err != nil {
			return err
		}
		cost := cooldown.ShrineEditCost(u.now, a.LastShrineEditAt)
		resp = &models.ShrineCostResponse{Cost: cost, Free: cost == 0}
		return nil
	})
	return resp, err
}
