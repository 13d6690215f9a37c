package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/cooldown"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

var (
	ErrUsernameTaken    = errors.New("username already taken")
	ErrDuplicatePayment = errors.New("payment already credited")
)

type moveResult struct {
	record      domain.Transaction
	fromBalance int64
	toBalance   int64
}

// move is the ledger primitive: it debits from, credits to and appends one
// transaction record. The debit is conditional on the balance covering it,
// so a unit can never overdraw. Callers already hold the account row locks.
func (u *unit) move(ctx context.Context, from, to uuid.UUID, amount int64, kind domain.TransactionKind, reason, ref string) (*moveResult, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidArgument, ErrInvalidAmount)
	}
	if !kind.Valid() {
		return nil, newError(KindInvalidArgument, ErrUnknownKind)
	}
	if from == to {
		return nil, newError(KindInvalidArgument, ErrSelfTransfer)
	}

	res := &moveResult{}
	if !domain.IsHouse(from) {
		bal, err := u.Debit(ctx, from, amount)
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			cur, gerr := u.GetAccount(ctx, from)
			if gerr != nil {
				return nil, gerr
			}
			return nil, insufficient(cur.Balance, amount)
		case errors.Is(err, store.ErrNotFound):
			return nil, newError(KindNotFound, ErrAccountNotFound)
		case err != nil:
			return nil, err
		}
		res.fromBalance = bal
	}
	if !domain.IsHouse(to) {
		bal, err := u.Credit(ctx, to, amount)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, newError(KindNotFound, ErrAccountNotFound)
			}
			return nil, err
		}
		res.toBalance = bal
	}

	res.record = domain.Transaction{
		From:        from,
		To:          to,
		Amount:      amount,
		Kind:        kind,
		Reason:      reason,
		ExternalRef: ref,
		CreatedAt:   u.now,
	}
	if err := u.AppendTransaction(ctx, &res.record); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, newError(KindConflict, ErrDuplicatePayment)
		}
		return nil, err
	}
	u.moves = append(u.moves, res.record)
	return res, nil
}

// Transfer moves Talents between two accounts or an account and the house,
// atomically with the balance check.
func (s *Service) Transfer(ctx context.Context, req models.TransferRequest) (*models.TransferResponse, error) {
	var resp *models.TransferResponse
	err := s.run(ctx, "transfer", func(u *unit) error {
		var err error
		resp, err = u.transfer(ctx, req)
		return err
	})
	return resp, err
}

func (u *unit) transfer(ctx context.Context, req models.TransferRequest) (*models.TransferResponse, error) {
	if req.FromAccountID == req.ToAccountID {
		return nil, newError(KindInvalidArgument, ErrSelfTransfer)
	}
	// Acquire locks in ID order
	if _, err := u.lock(ctx, req.FromAccountID, req.ToAccountID); err != nil {
		return nil, err
	}
	res, err := u.move(ctx, req.FromAccountID, req.ToAccountID, req.Amount, req.Kind, req.Reason, "")
	if err != nil {
		return nil, err
	}
	return &models.TransferResponse{
		Transaction:    res.record,
		NewFromBalance: res.fromBalance,
		NewToBalance:   res.toBalance,
	}, nil
}

// TransferIdempotent runs Transfer at most once per idempotency key. A replay
// with the same payload returns the stored response as the record.
func (s *Service) TransferIdempotent(ctx context.Context, req models.TransferRequest, idempotencyKey, reqHash string) (*models.TransferResponse, *models.IdempotencyRecord, error) {
	var (
		resp     *models.TransferResponse
		existing *models.IdempotencyRecord
	)
	err := s.run(ctx, "transfer", func(u *unit) error {
		var err error
		existing, err = u.reserveKey(ctx, idempotencyKey, reqHash)
		if err != nil || existing != nil {
			return err
		}

		resp, err = u.transfer(ctx, req)
		if err != nil {
			return err
		}
		return u.completeKey(ctx, idempotencyKey, http.StatusCreated, resp)
	})
	if err != nil {
		return nil, nil, err
	}
	return resp, existing, nil
}

// reserveKey returns the stored record for a completed key, or reserves a new one.
func (u *unit) reserveKey(ctx context.Context, key, reqHash string) (*models.IdempotencyRecord, error) {
	stored, err := u.GetIdempotency(ctx, key)
	if err == nil {
		if stored.RequestHash != reqHash {
			return nil, newError(KindInvalidArgument, ErrIdempotencyMismatch)
		}
		if stored.Status != domain.IdempotencyCompleted {
			return nil, newError(KindConflict, ErrIdempotencyConflict)
		}
		return &models.IdempotencyRecord{
			Key:            key,
			RequestHash:    stored.RequestHash,
			Status:         stored.Status,
			ResponseBody:   stored.ResponseBody,
			ResponseStatus: stored.ResponseStatus,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := u.ReserveIdempotency(ctx, key, reqHash); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, newError(KindConflict, ErrIdempotencyConflict)
		}
		return nil, err
	}
	return nil, nil
}

func (u *unit) completeKey(ctx context.Context, key string, status int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return u.CompleteIdempotency(ctx, key, status, body)
}

// CreateAccount registers a new account in the Active state with a full
// stock of COMA refills. A positive initial balance is granted by the house.
func (s *Service) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*domain.Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, newError(KindInvalidArgument, errors.New("username is required"))
	}
	if req.InitialBalance < 0 {
		return nil, newError(KindInvalidArgument, ErrInvalidAmount)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	var acct *domain.Account
	err := s.run(ctx, "create_account", func(u *unit) error {
		acct = &domain.Account{
			ID:               uuid.New(),
			Username:         username,
			State:            domain.StateActive,
			Verified:         req.Verified,
			Role:             role,
			ComaRefills:      cooldown.MaxRefills,
			RefillsUpdatedAt: u.now,
			CreatedAt:        u.now,
		}
		if err := u.InsertAccount(ctx, acct); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return newError(KindConflict, ErrUsernameTaken)
			}
			return err
		}
		if req.InitialBalance > 0 {
			res, err := u.move(ctx, domain.House, acct.ID, req.InitialBalance, domain.KindGift, "signup grant", "")
			if err != nil {
				return err
			}
			acct.Balance = res.toBalance
		}
		return nil
	})
	return acct, err
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acct *domain.Account
	err := s.run(ctx, "get_account", func(u *unit) error {
		var err error
		acct, err = u.read(ctx, id)
		return err
	})
	return acct, err
}

func (s *Service) Balance(ctx context.Context, id uuid.UUID) (int64, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Transactions lists the newest ledger records touching the account.
func (s *Service) Transactions(ctx context.Context, id uuid.UUID, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.run(ctx, "list_transactions", func(u *unit) error {
		if _, err := u.read(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = u.ListTransactions(ctx, id, limit)
		return err
	})
	return out, err
}
