package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/cooldown"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/notify"
)

// SelfKill deactivates the account and opens its 72h shrine window. The
// balance stays on the row until the purge forfeits it.
func (s *Service) SelfKill(ctx context.Context, accountID uuid.UUID, shrineMessage, shrineLink string) error {
	return s.run(ctx, "self_kill", func(u *unit) error {
		a, err := u.lockOne(ctx, accountID)
		if err != nil {
			return err
		}
		switch {
		case a.IsGhost():
			return newError(KindInvalidStateTransition, ErrAlreadySelfKilled)
		case a.InComa():
			return newError(KindInvalidStateTransition, ErrSelfKillInComa)
		}

		a.State = domain.StateSelfKilled
		a.DeactivatedAt = &u.now
		a.ShrineMessage = shrineMessage
		if shrineLink != "" {
			a.ShrineLink = shrineLink
		}
		if err := u.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := u.feed(ctx, notify.SelfKill(a.DisplayName())); err != nil {
			return err
		}
		u.after(func() { lifecycleTransitionsTotal.WithLabelValues(string(domain.StateSelfKilled)).Inc() })
		return nil
	})
}

// IsEligibleForPurge is true once a self-killed account's shrine window has elapsed.
func IsEligibleForPurge(a *domain.Account, now time.Time) bool {
	return a.IsGhost() && cooldown.PurgeDue(now, a.DeactivatedAt)
}

func (s *Service) SelfKillStatus(ctx context.Context, accountID uuid.UUID) (*models.SelfKillStatusResponse, error) {
	var resp *models.SelfKillStatusResponse
	err := s.run(ctx, "self_kill_status", func(u *unit) error {
		a, err := u.read(ctx, accountID)
		if err != nil {
			return err
		}
		resp = &models.SelfKillStatusResponse{}
		if a.IsGhost() {
			left := cooldown.SelfKillRemaining(u.now, a.DeactivatedAt)
			resp.IsLocked = left > 0
			resp.HoursRemaining = cooldown.Hours(left)
			resp.EligibleForPurge = IsEligibleForPurge(a, u.now)
		}
		return nil
	})
	return resp, err
}

// PurgeGhosts tombstones every ghost whose shrine window has elapsed. Each
// ghost is its own transaction: the remaining balance is forfeited to the
// house, shrine fields are cleared and the state becomes GhostDeleted. The
// transaction log is kept.
func (s *Service) PurgeGhosts(ctx context.Context) (*models.PurgeResult, error) {
	var candidates []uuid.UUID
	err := s.run(ctx, "purge_candidates", func(u *unit) error {
		var err error
		candidates, err = u.ListPurgeCandidates(ctx, u.now.Add(-cooldown.SelfKillLockout))
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &models.PurgeResult{Purged: []uuid.UUID{}}
	var errs []error
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		forfeited, purged, err := s.purgeOne(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if purged {
			result.Purged = append(result.Purged, id)
			result.Forfeited += forfeited
		}
	}
	if len(result.Purged) > 0 {
		s.logger.Info("ghosts purged", "count", len(result.Purged), "forfeited", result.Forfeited)
	}
	return result, errors.Join(errs...)
}

func (s *Service) purgeOne(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	var (
		forfeited int64
		purged    bool
	)
	err := s.run(ctx, "purge_ghost", func(u *unit) error {
		a, err := u.lockOne(ctx, id)
		if err != nil {
			if KindOf(err) == KindNotFound {
				return nil
			}
			return err
		}
		if !IsEligibleForPurge(a, u.now) {
			return nil
		}
		if a.Balance > 0 {
			if _, err := u.move(ctx, a.ID, domain.House, a.Balance, domain.KindForfeit, "ghost purge", ""); err != nil {
				return err
			}
			forfeited = a.Balance
		}
		a.State = domain.StateGhostDeleted
		a.ShrineMessage = ""
		a.ShrineLink = ""
		if err := u.SaveAccount(ctx, a); err != nil {
			return err
		}
		purged = true
		u.after(func() {
			ghostsPurgedTotal.Inc()
			lifecycleTransitionsTotal.WithLabelValues(string(domain.StateGhostDeleted)).Inc()
		})
		return nil
	})
	return forfeited, purged, err
}
