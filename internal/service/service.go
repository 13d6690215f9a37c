package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/logging"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

// Fixed prices in Talents.
const (
	ComaEntryCost    = 50
	CPRCost          = 1
	FourthWallCost   = 100
	RevealCost       = 1
	GigPostCost      = 10
	MaxActiveGigs    = 5
	DefaultFeedLimit = 50
)

// Service owns the economy and lifecycle rules. Every operation is one store
// transaction: rows are locked, rules checked, and mutations applied inside it.
type Service struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

// WithClock injects the wall clock used by every temporal rule.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// unit is the state of one running operation.
type unit struct {
	store.Tx
	now      time.Time
	moves    []domain.Transaction
	onCommit []func()
}

func (u *unit) after(fn func()) {
	u.onCommit = append(u.onCommit, fn)
}

// run executes fn as one transaction. Business errors pass through untouched;
// anything else is an infrastructure fault and is logged.
func (s *Service) run(ctx context.Context, op string, fn func(u *unit) error) error {
	var done *unit
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		u := &unit{Tx: tx, now: s.clock()}
		if err := fn(u); err != nil {
			return err
		}
		done = u
		return nil
	})
	if err != nil {
		if e, ok := AsError(err); ok {
			s.logger.Debug("operation rejected", "op", op, "kind", e.Kind.String(), "error", err)
			return err
		}
		s.logger.Error("store failure", "op", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, m := range done.moves {
		talentsMovedTotal.WithLabelValues(string(m.Kind)).Add(float64(m.Amount))
	}
	for _, fn := range done.onCommit {
		fn()
	}
	return nil
}

// lock locks the given accounts in id order and maps a missing or purged
// account to NotFound.
func (u *unit) lock(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	accounts, err := u.LockAccounts(ctx, ids...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, ErrAccountNotFound)
		}
		return nil, err
	}
	for _, a := range accounts {
		if a.IsDeleted() {
			return nil, newError(KindNotFound, ErrAccountNotFound)
		}
	}
	return accounts, nil
}

func (u *unit) lockOne(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if domain.IsHouse(id) {
		return nil, newError(KindNotFound, ErrAccountNotFound)
	}
	accounts, err := u.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	return accounts[id], nil
}

// read fetches an account without locking it.
func (u *unit) read(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := u.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, ErrAccountNotFound)
		}
		return nil, err
	}
	if a.IsDeleted() {
		return nil, newError(KindNotFound, ErrAccountNotFound)
	}
	return a, nil
}

// feed appends a message stamped with the unit's clock.
func (u *unit) feed(ctx context.Context, m domain.FeedMessage) error {
	m.CreatedAt = u.now
	return u.AppendFeed(ctx, &m)
}
