package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
)

var giftAmounts = map[int64]bool{1: true, 5: true, 10: true}

// Gift throws 1, 5 or 10 Talents from one account to another.
func (s *Service) Gift(ctx context.Context, fromID, toID uuid.UUID, amount int64) (*models.TransferResponse, error) {
	if !giftAmounts[amount] {
		return nil, newError(KindInvalidArgument, ErrInvalidGiftAmount)
	}
	if fromID == toID || domain.IsHouse(fromID) || domain.IsHouse(toID) {
		return nil, newError(KindInvalidArgument, ErrSelfTransfer)
	}

	var resp *models.TransferResponse
	err := s.run(ctx, "gift", func(u *unit) error {
		accounts, err := u.lock(ctx, fromID, toID)
		if err != nil {
			return err
		}
		if accounts[fromID].IsGhost() || accounts[toID].IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		res, err := u.move(ctx, fromID, toID, amount, domain.KindGift, "gift", "")
		if err != nil {
			return err
		}
		resp = &models.TransferResponse{Transaction: res.record, NewFromBalance: res.fromBalance, NewToBalance: res.toBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Donate pays Talents to the house on behalf of an official announcement.
func (s *Service) Donate(ctx context.Context, donorID uuid.UUID, announcementID string, amount int64) (int64, error) {
	announcementID = strings.TrimSpace(announcementID)
	if announcementID == "" {
		return 0, newError(KindInvalidArgument, fmt.Errorf("announcement id is required"))
	}
	if amount <= 0 {
		return 0, newError(KindInvalidArgument, ErrInvalidAmount)
	}

	var balance int64
	err := s.run(ctx, "donate", func(u *unit) error {
		a, err := u.lockOne(ctx, donorID)
		if err != nil {
			return err
		}
		if a.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		res, err := u.move(ctx, donorID, domain.House, amount, domain.KindDonation, "donation to "+announcementID, "")
		if err != nil {
			return err
		}
		balance = res.fromBalance
		return nil
	})
	return balance, err
}

// CreditPurchase applies the payment processor's "credit N Talents" callback.
// It is keyed on the payment reference: a replayed callback returns the
// original response as the record and never credits twice.
func (s *Service) CreditPurchase(ctx context.Context, req models.PurchaseCreditRequest) (*models.TransferResponse, *models.IdempotencyRecord, error) {
	ref := strings.TrimSpace(req.PaymentRef)
	if ref == "" {
		return nil, nil, newError(KindInvalidArgument, fmt.Errorf("payment reference is required"))
	}
	if req.Talents <= 0 {
		return nil, nil, newError(KindInvalidArgument, ErrInvalidAmount)
	}

	var (
		resp     *models.TransferResponse
		existing *models.IdempotencyRecord
	)
	err := s.run(ctx, "credit_purchase", func(u *unit) error {
		var err error
		key := "purchase:" + ref
		existing, err = u.reserveKey(ctx, key, fmt.Sprintf("%s:%d", req.AccountID, req.Talents))
		if err != nil || existing != nil {
			return err
		}

		if _, err := u.lockOne(ctx, req.AccountID); err != nil {
			return err
		}
		res, err := u.move(ctx, domain.House, req.AccountID, req.Talents, domain.KindPurchaseCredit, "talent purchase", ref)
		if err != nil {
			return err
		}
		resp = &models.TransferResponse{Transaction: res.record, NewToBalance: res.toBalance}
		return u.completeKey(ctx, key, http.StatusCreated, resp)
	})
	if err != nil {
		return nil, nil, err
	}
	return resp, existing, nil
}

// ModerateBalance lets a moderator or admin grant (delta > 0) or fine
// (delta < 0) an account. Fines are clamped to the available balance.
func (s *Service) ModerateBalance(ctx context.Context, moderatorID, targetID uuid.UUID, delta int64, reason string) (*models.ModerateBalanceResponse, error) {
	if delta == 0 {
		return nil, newError(KindInvalidArgument, ErrInvalidAmount)
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "moderator adjustment by " + moderatorID.String()
	}

	var resp *models.ModerateBalanceResponse
	err := s.run(ctx, "moderate_balance", func(u *unit) error {
		accounts, err := u.lock(ctx, moderatorID, targetID)
		if err != nil {
			return err
		}
		mod, target := accounts[moderatorID], accounts[targetID]
		if mod == nil || target == nil {
			return newError(KindNotFound, ErrAccountNotFound)
		}
		if !mod.Role.Privileged() {
			return newError(KindUnauthorized, ErrNotPrivileged)
		}

		resp = &models.ModerateBalanceResponse{OldBalance: target.Balance, NewBalance: target.Balance}
		switch {
		case delta > 0:
			res, err := u.move(ctx, domain.House, targetID, delta, domain.KindGift, reason, "")
			if err != nil {
				return err
			}
			resp.NewBalance = res.toBalance
		case target.Balance > 0:
			res, err := u.move(ctx, targetID, domain.House, min(-delta, target.Balance), domain.KindFine, reason, "")
			if err != nil {
				return err
			}
			resp.NewBalance = res.fromBalance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
