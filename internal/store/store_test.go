package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/protocol6713/internal/domain"
)

func newSQLite(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newPostgres(t *testing.T) Store {
	t.Helper()
	source := os.Getenv("TEST_DB_SOURCE")
	if source == "" {
		t.Skip("TEST_DB_SOURCE not set")
	}
	s, err := NewPostgresStore(context.Background(), source)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, newPostgres(t)) })
}

var now = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T, s Store, balance int64) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:               uuid.New(),
		Balance:          balance,
		State:            domain.StateActive,
		Role:             domain.RoleUser,
		ComaRefills:      3,
		RefillsUpdatedAt: now,
		CreatedAt:        now,
	}
	a.Username = "user_" + a.ID.String()[:8]
	require.NoError(t, s.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertAccount(context.Background(), a)
	}))
	return a
}

func TestAccountRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 25)

		entered := now.Add(time.Hour)
		err := s.WithTx(ctx, func(tx Tx) error {
			got, err := tx.GetAccount(ctx, a.ID)
			if err != nil {
				return err
			}
			got.State = domain.StateComa
			got.ComaReason = domain.ComaQuest
			got.ComaEnteredAt = &entered
			got.ShrineLink = "https://shrine.example/nova"
			return tx.SaveAccount(ctx, got)
		})
		require.NoError(t, err)

		var got *domain.Account
		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			got, err = tx.GetAccount(ctx, a.ID)
			return err
		}))
		assert.Equal(t, int64(25), got.Balance)
		assert.Equal(t, domain.StateComa, got.State)
		assert.Equal(t, domain.ComaQuest, got.ComaReason)
		require.NotNil(t, got.ComaEnteredAt)
		assert.True(t, entered.Equal(*got.ComaEnteredAt))
		assert.Nil(t, got.ComaExitedAt)
		assert.Equal(t, "https://shrine.example/nova", got.ShrineLink)
		assert.True(t, now.Equal(got.RefillsUpdatedAt))
	})
}

func TestInsertAccount_DuplicateUsername(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 0)
		dup := *a
		dup.ID = uuid.New()
		err := s.WithTx(ctx, func(tx Tx) error { return tx.InsertAccount(ctx, &dup) })
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestDebitCredit(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 10)

		err := s.WithTx(ctx, func(tx Tx) error {
			bal, err := tx.Debit(ctx, a.ID, 10)
			require.NoError(t, err)
			assert.Zero(t, bal)

			_, err = tx.Debit(ctx, a.ID, 1)
			assert.ErrorIs(t, err, ErrInsufficientFunds)

			bal, err = tx.Credit(ctx, a.ID, 4)
			require.NoError(t, err)
			assert.Equal(t, int64(4), bal)

			_, err = tx.Debit(ctx, uuid.New(), 1)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = tx.Credit(ctx, uuid.New(), 1)
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 10)
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(tx Tx) error {
			if _, err := tx.Debit(ctx, a.ID, 7); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			got, err := tx.GetAccount(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(10), got.Balance)
			return nil
		}))
	})
}

func TestLockAccounts_SkipsHouseAndMissing(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 1)
		b := seed(t, s, 2)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			got, err := tx.LockAccounts(ctx, b.ID, domain.House, a.ID, a.ID)
			require.NoError(t, err)
			assert.Len(t, got, 2)
			assert.Equal(t, int64(2), got[b.ID].Balance)
			return nil
		}))

		err := s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.LockAccounts(ctx, a.ID, uuid.New())
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConcurrentDebits_NeverOverdraw(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 100)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.WithTx(ctx, func(tx Tx) error {
					if _, err := tx.LockAccounts(ctx, a.ID); err != nil {
						return err
					}
					_, err := tx.Debit(ctx, a.ID, 60)
					return err
				})
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrInsufficientFunds)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, success)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			got, err := tx.GetAccount(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(40), got.Balance)
			return nil
		}))
	})
}

func TestTransactions_HouseIsNull(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 0)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			first := &domain.Transaction{From: domain.House, To: a.ID, Amount: 50, Kind: domain.KindPurchaseCredit,
				ExternalRef: "pay_" + a.ID.String(), CreatedAt: now}
			require.NoError(t, tx.AppendTransaction(ctx, first))
			assert.NotZero(t, first.ID)

			second := &domain.Transaction{From: a.ID, To: domain.House, Amount: 1, Kind: domain.KindPostCost, CreatedAt: now}
			return tx.AppendTransaction(ctx, second)
		}))

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			list, err := tx.ListTransactions(ctx, a.ID, 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, domain.KindPostCost, list[0].Kind)
			assert.Equal(t, domain.House, list[0].To)
			assert.Equal(t, domain.House, list[1].From)
			assert.Equal(t, "pay_"+a.ID.String(), list[1].ExternalRef)
			return nil
		}))

		err := s.WithTx(ctx, func(tx Tx) error {
			return tx.AppendTransaction(ctx, &domain.Transaction{From: domain.House, To: a.ID, Amount: 50,
				Kind: domain.KindPurchaseCredit, ExternalRef: "pay_" + a.ID.String(), CreatedAt: now})
		})
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestRescues(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ghost := seed(t, s, 0)
		medic := seed(t, s, 5)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			return tx.InsertRescue(ctx, &domain.Rescue{GhostID: ghost.ID, RescuerID: medic.ID, Batch: 0, CreatedAt: now})
		}))
		err := s.WithTx(ctx, func(tx Tx) error {
			return tx.InsertRescue(ctx, &domain.Rescue{GhostID: ghost.ID, RescuerID: medic.ID, Batch: 0, CreatedAt: now})
		})
		assert.ErrorIs(t, err, ErrDuplicate)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			require.NoError(t, tx.InsertRescue(ctx, &domain.Rescue{GhostID: ghost.ID, RescuerID: medic.ID, Batch: 1, CreatedAt: now}))

			n, err := tx.CountRescues(ctx, ghost.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			ok, err := tx.MarkRescueViewed(ctx, ghost.ID, medic.ID, 0, now)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = tx.MarkRescueViewed(ctx, ghost.ID, medic.ID, 0, now)
			require.NoError(t, err)
			assert.False(t, ok, "second view is refused")

			list, err := tx.ListRescues(ctx, ghost.ID)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.True(t, list[0].ShrineViewed)
			assert.NotNil(t, list[0].ViewedAt)
			assert.False(t, list[1].ShrineViewed)
			return nil
		}))
	})
}

func TestBreaks(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		coma := seed(t, s, 0)
		req := seed(t, s, 150)
		b := &domain.BreakRequest{ID: uuid.New(), ComaID: coma.ID, RequesterID: req.ID,
			Message: "wake up", Status: domain.BreakPending, CreatedAt: now}

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			require.NoError(t, tx.InsertBreak(ctx, b))
			pending, err := tx.ListPendingBreaks(ctx, coma.ID)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "wake up", pending[0].Message)

			ok, err := tx.ResolveBreak(ctx, b.ID, domain.BreakAccepted, now)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = tx.ResolveBreak(ctx, b.ID, domain.BreakRejected, now)
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := tx.LockBreak(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.BreakAccepted, got.Status)
			assert.NotNil(t, got.RespondedAt)

			accepted, err := tx.HasAcceptedBreak(ctx, req.ID, coma.ID)
			require.NoError(t, err)
			assert.True(t, accepted)

			_, err = tx.LockBreak(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		}))
	})
}

func TestFeedAndMessages(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seed(t, s, 0)
		b := seed(t, s, 0)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			require.NoError(t, tx.AppendFeed(ctx, &domain.FeedMessage{AuthorID: domain.SystemActor, Author: "Pope AI",
				Content: "system", Kind: domain.FeedSystem, Permanent: true, CreatedAt: now}))
			require.NoError(t, tx.AppendFeed(ctx, &domain.FeedMessage{AuthorID: a.ID, Author: a.Username,
				Content: "hello", Kind: domain.FeedText, Whisper: true, CreatedAt: now}))

			feed, err := tx.ListFeed(ctx, 2)
			require.NoError(t, err)
			require.Len(t, feed, 2)
			assert.Equal(t, "hello", feed[0].Content)
			assert.True(t, feed[0].Whisper)
			assert.Equal(t, domain.SystemActor, feed[1].AuthorID)
			assert.Equal(t, a.ID, feed[0].AuthorID)
			assert.True(t, feed[1].Permanent)

			dm := &domain.DirectMessage{SenderID: a.ID, RecipientID: b.ID, Content: "psst", CreatedAt: now}
			require.NoError(t, tx.InsertDirectMessage(ctx, dm))
			assert.NotZero(t, dm.ID)
			return nil
		}))
	})
}

func TestGigs(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		owner := seed(t, s, 0)
		g := &domain.Gig{ID: uuid.New(), OwnerID: owner.ID, Title: "logo", Reward: 20, CreatedAt: now}

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			require.NoError(t, tx.InsertGig(ctx, g))
			n, err := tx.CountActiveGigs(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			require.NoError(t, tx.CompleteGig(ctx, g.ID, now))
			n, err = tx.CountActiveGigs(ctx, owner.ID)
			require.NoError(t, err)
			assert.Zero(t, n)

			got, err := tx.LockGig(ctx, g.ID)
			require.NoError(t, err)
			assert.True(t, got.Completed)
			assert.NotNil(t, got.CompletedAt)
			return nil
		}))
	})
}

func TestReveals(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		viewer := seed(t, s, 0)
		viewed := seed(t, s, 0)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.GetReveal(ctx, viewer.ID, viewed.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			r := &domain.Reveal{ViewerID: viewer.ID, ViewedID: viewed.ID, PictureURL: "a.png", RevealedAt: now}
			require.NoError(t, tx.UpsertReveal(ctx, r))
			r.PictureURL = "b.png"
			require.NoError(t, tx.UpsertReveal(ctx, r))

			got, err := tx.GetReveal(ctx, viewer.ID, viewed.ID)
			require.NoError(t, err)
			assert.Equal(t, "b.png", got.PictureURL)
			return nil
		}))
	})
}

func TestIdempotencyKeys(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := "key-" + uuid.NewString()

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.GetIdempotency(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, tx.ReserveIdempotency(ctx, key, "hash"))
			got, err := tx.GetIdempotency(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, domain.IdempotencyInProgress, got.Status)
			return tx.CompleteIdempotency(ctx, key, 201, []byte(`{"ok":true}`))
		}))

		err := s.WithTx(ctx, func(tx Tx) error { return tx.ReserveIdempotency(ctx, key, "hash") })
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			got, err := tx.GetIdempotency(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, domain.IdempotencyCompleted, got.Status)
			assert.Equal(t, 201, got.ResponseStatus)
			assert.JSONEq(t, `{"ok":true}`, string(got.ResponseBody))
			return nil
		}))
	})
}

func TestPurgeCandidates(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ghost := seed(t, s, 0)
		fresh := seed(t, s, 0)

		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			old := now.Add(-80 * time.Hour)
			recent := now.Add(-time.Hour)
			for _, upd := range []struct {
				a  *domain.Account
				at *time.Time
			}{{ghost, &old}, {fresh, &recent}} {
				upd.a.State = domain.StateSelfKilled
				upd.a.DeactivatedAt = upd.at
				require.NoError(t, tx.SaveAccount(ctx, upd.a))
			}

			ids, err := tx.ListPurgeCandidates(ctx, now.Add(-72*time.Hour))
			require.NoError(t, err)
			assert.Contains(t, ids, ghost.ID)
			assert.NotContains(t, ids, fresh.ID)
			return nil
		}))
	})
}

func TestSortedIDs(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	b := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	assert.Equal(t, []uuid.UUID{a, b}, sortedIDs([]uuid.UUID{b, domain.House, a, b}))
	assert.Empty(t, sortedIDs([]uuid.UUID{domain.House}))
}
