package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/protocol6713/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicate         = errors.New("duplicate record")
	ErrConflict          = errors.New("concurrent update conflict")
)

// Store is the transactional persistence substrate of the economy.
// Every read and write happens inside WithTx; fn's error rolls the unit back.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is one atomic unit of work. Implementations guarantee that LockAccounts
// serialises concurrent units touching the same account rows and that Debit
// never leaves a negative balance.
type Tx interface {
	InsertAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// LockAccounts locks the rows in ascending id order. House ids are skipped.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error)
	// Debit subtracts amount only if the balance covers it and returns the new balance.
	Debit(ctx context.Context, id uuid.UUID, amount int64) (int64, error)
	Credit(ctx context.Context, id uuid.UUID, amount int64) (int64, error)
	// SaveAccount persists every mutable field except the balance.
	SaveAccount(ctx context.Context, a *domain.Account) error
	ListPurgeCandidates(ctx context.Context, deactivatedBefore time.Time) ([]uuid.UUID, error)

	AppendTransaction(ctx context.Context, t *domain.Transaction) error
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)

	CountRescues(ctx context.Context, ghostID uuid.UUID) (int64, error)
	// InsertRescue returns ErrDuplicate for a second (ghost, rescuer, batch) entry.
	InsertRescue(ctx context.Context, r *domain.Rescue) error
	ListRescues(ctx context.Context, ghostID uuid.UUID) ([]domain.Rescue, error)
	// MarkRescueViewed flips the viewed flag if it is still false.
	MarkRescueViewed(ctx context.Context, ghostID, rescuerID uuid.UUID, batch int64, at time.Time) (bool, error)

	InsertBreak(ctx context.Context, b *domain.BreakRequest) error
	LockBreak(ctx context.Context, id uuid.UUID) (*domain.BreakRequest, error)
	// ResolveBreak moves a pending request to status; false if it was not pending.
	ResolveBreak(ctx context.Context, id uuid.UUID, status domain.BreakStatus, at time.Time) (bool, error)
	ListPendingBreaks(ctx context.Context, comaID uuid.UUID) ([]domain.BreakRequest, error)
	HasAcceptedBreak(ctx context.Context, requesterID, comaID uuid.UUID) (bool, error)

	AppendFeed(ctx context.Context, m *domain.FeedMessage) error
	ListFeed(ctx context.Context, limit int) ([]domain.FeedMessage, error)
	InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) error

	CountActiveGigs(ctx context.Context, ownerID uuid.UUID) (int, error)
	InsertGig(ctx context.Context, g *domain.Gig) error
	LockGig(ctx context.Context, id uuid.UUID) (*domain.Gig, error)
	CompleteGig(ctx context.Context, id uuid.UUID, at time.Time) error

	GetReveal(ctx context.Context, viewerID, viewedID uuid.UUID) (*domain.Reveal, error)
	UpsertReveal(ctx context.Context, r *domain.Reveal) error

	GetIdempotency(ctx context.Context, key string) (*domain.IdempotencyPayload, error)
	// ReserveIdempotency returns ErrConflict if the key is already reserved.
	ReserveIdempotency(ctx context.Context, key, requestHash string) error
	CompleteIdempotency(ctx context.Context, key string, status int, body []byte) error
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured backend and applies its schema.
func Open(ctx context.Context, driver, source string) (Store, error) {
	switch driver {
	case DriverPostgres:
		s, err := NewPostgresStore(ctx, source)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLiteStore(source)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// sortedIDs returns the real account ids in lock order, deduplicated.
func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if domain.IsHouse(id) || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	slices.SortFunc(out, domain.CompareIDs)
	return out
}

// nullableID maps the house to SQL NULL.
func nullableID(id uuid.UUID) any {
	if domain.IsHouse(id) {
		return nil
	}
	return id
}

// feedAuthor maps the system actor to SQL NULL.
func feedAuthor(id uuid.UUID) any {
	if id == domain.SystemActor {
		return nil
	}
	return nullableID(id)
}

func feedAuthorID(author uuid.NullUUID) uuid.UUID {
	if !author.Valid {
		return domain.SystemActor
	}
	return author.UUID
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
