package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/cooldown"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/notify"
)

// regenerate applies lazy refill regeneration to a locked account and
// persists it when the stock grew.
func (u *unit) regenerate(ctx context.Context, a *domain.Account) error {
	refills, stamp, changed := cooldown.RegenerateRefills(u.now, a.ComaRefills, a.RefillsUpdatedAt)
	if !changed {
		return nil
	}
	a.ComaRefills, a.RefillsUpdatedAt = refills, stamp
	return u.SaveAccount(ctx, a)
}

// EnterComa pauses an active account. Entry consumes a refill when one is
// available and otherwise costs ComaEntryCost Talents.
func (s *Service) EnterComa(ctx context.Context, accountID uuid.UUID, reason domain.ComaReason) (*models.EnterComaResponse, error) {
	if !reason.Valid() {
		return nil, newError(KindInvalidArgument, ErrInvalidReason)
	}

	var resp *models.EnterComaResponse
	err := s.run(ctx, "enter_coma", func(u *unit) error {
		a, err := u.lockOne(ctx, accountID)
		if err != nil {
			return err
		}
		if a.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		if a.InComa() {
			return newError(KindInvalidStateTransition, ErrAlreadyInComa)
		}
		if left := cooldown.ComaCooldownRemaining(u.now, a.ComaExitedAt); left > 0 {
			return cooldownActive(ErrComaCooldown, left)
		}

		refills, stamp, _ := cooldown.RegenerateRefills(u.now, a.ComaRefills, a.RefillsUpdatedAt)
		resp = &models.EnterComaResponse{TalentBalance: a.Balance}
		if refills > 0 {
			refills, stamp = cooldown.ConsumeRefill(u.now, refills, stamp)
			resp.UsedRefill = true
		} else {
			res, err := u.move(ctx, a.ID, domain.House, ComaEntryCost, domain.KindComaEntry, "coma entry", "")
			if err != nil {
				if KindOf(err) == KindInsufficientBalance {
					e, _ := AsError(err)
					return &Error{Kind: KindInsufficientResources, Err: ErrInsufficientResources,
						Balance: e.Balance, Required: ComaEntryCost}
				}
				return err
			}
			resp.TalentBalance = res.fromBalance
		}

		a.ComaRefills, a.RefillsUpdatedAt = refills, stamp
		a.State = domain.StateComa
		a.ComaReason = reason
		a.ComaEnteredAt = &u.now
		if err := u.SaveAccount(ctx, a); err != nil {
			return err
		}
		resp.RefillsRemaining = refills

		if err := u.feed(ctx, notify.ComaEntered(a.DisplayName(), reason)); err != nil {
			return err
		}
		u.after(func() { lifecycleTransitionsTotal.WithLabelValues(string(domain.StateComa)).Inc() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ExitComa returns the account to Active and starts the re-entry lockout.
func (s *Service) ExitComa(ctx context.Context, accountID uuid.UUID) error {
	return s.run(ctx, "exit_coma", func(u *unit) error {
		a, err := u.lockOne(ctx, accountID)
		if err != nil {
			return err
		}
		if !a.InComa() {
			return newError(KindInvalidStateTransition, ErrNotInComa)
		}
		a.State = domain.StateActive
		a.ComaReason = ""
		a.ComaExitedAt = &u.now
		if err := u.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := u.feed(ctx, notify.ComaExited(a.DisplayName())); err != nil {
			return err
		}
		u.after(func() { lifecycleTransitionsTotal.WithLabelValues(string(domain.StateActive)).Inc() })
		return nil
	})
}

// ComaStatus reports the COMA gate, regenerating refills as a side effect.
func (s *Service) ComaStatus(ctx context.Context, accountID uuid.UUID) (*models.ComaStatusResponse, error) {
	var resp *models.ComaStatusResponse
	err := s.run(ctx, "coma_status", func(u *unit) error {
		a, err := u.lockOne(ctx, accountID)
		if err != nil {
			return err
		}
		if err := u.regenerate(ctx, a); err != nil {
			return err
		}

		left := cooldown.ComaCooldownRemaining(u.now, a.ComaExitedAt)
		resp = &models.ComaStatusResponse{
			InComa:                 a.InComa(),
			Refills:                a.ComaRefills,
			Balance:                a.Balance,
			CooldownHoursRemaining: cooldown.Hours(left),
			CanEnter: a.State == domain.StateActive && left == 0 &&
				(a.ComaRefills > 0 || a.Balance >= ComaEntryCost),
		}
		if a.InComa() {
			resp.Reason = a.ComaReason
		}
		return nil
	})
	return resp, err
}
