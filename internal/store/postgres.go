package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/protocol6713/internal/domain"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresStore runs every unit of work in a READ COMMITTED transaction and
// relies on SELECT ... FOR UPDATE row locks plus conditional updates, so
// concurrent debits of one account serialise instead of aborting.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to apply schema: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const pgAccountColumns = `id, username, balance, state, verified, role, coma_reason, coma_entered_at,
	coma_exited_at, coma_refills, coma_refills_updated_at, deactivated_at, shrine_message, shrine_link,
	last_shrine_edit_at, last_post_at, created_at`

func scanPgAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                   domain.Account
		state, role, reason string
	)
	err := row.Scan(&a.ID, &a.Username, &a.Balance, &state, &a.Verified, &role, &reason,
		&a.ComaEnteredAt, &a.ComaExitedAt, &a.ComaRefills, &a.RefillsUpdatedAt, &a.DeactivatedAt,
		&a.ShrineMessage, &a.ShrineLink, &a.LastShrineEditAt, &a.LastPostAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.State = domain.LifecycleState(state)
	a.Role = domain.Role(role)
	a.ComaReason = domain.ComaReason(reason)
	return &a, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (t *pgTx) InsertAccount(ctx context.Context, a *domain.Account) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (id, username, balance, state, verified, role, coma_refills,
			coma_refills_updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Username, a.Balance, string(a.State), a.Verified, string(a.Role), a.ComaRefills,
		a.RefillsUpdatedAt, a.CreatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("account insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := scanPgAccount(t.tx.QueryRow(ctx, "SELECT "+pgAccountColumns+" FROM accounts WHERE id = $1", id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	return a, err
}

func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	out := make(map[uuid.UUID]*domain.Account, len(ids))
	// Acquire locks in ID order
	for _, id := range sortedIDs(ids) {
		a, err := scanPgAccount(t.tx.QueryRow(ctx,
			"SELECT "+pgAccountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		out[id] = a
	}
	return out, nil
}

func (t *pgTx) Debit(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1
		WHERE id = $2 AND balance >= $1 AND state <> 'ghost_deleted'
		RETURNING balance`, amount, id).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit failed: %w", err)
	}
	if _, err := t.liveAccount(ctx, id); err != nil {
		return 0, err
	}
	return 0, ErrInsufficientFunds
}

func (t *pgTx) Credit(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1
		WHERE id = $2 AND state <> 'ghost_deleted'
		RETURNING balance`, amount, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("credit failed: %w", err)
	}
	return balance, nil
}

func (t *pgTx) liveAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsDeleted() {
		return nil, ErrNotFound
	}
	return a, nil
}

func (t *pgTx) SaveAccount(ctx context.Context, a *domain.Account) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET
			username = $2, state = $3, verified = $4, role = $5, coma_reason = $6,
			coma_entered_at = $7, coma_exited_at = $8, coma_refills = $9, coma_refills_updated_at = $10,
			deactivated_at = $11, shrine_message = $12, shrine_link = $13, last_shrine_edit_at = $14,
			last_post_at = $15
		WHERE id = $1`,
		a.ID, a.Username, string(a.State), a.Verified, string(a.Role), string(a.ComaReason),
		a.ComaEnteredAt, a.ComaExitedAt, a.ComaRefills, a.RefillsUpdatedAt,
		a.DeactivatedAt, a.ShrineMessage, a.ShrineLink, a.LastShrineEditAt, a.LastPostAt)
	if err != nil {
		return fmt.Errorf("account update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListPurgeCandidates(ctx context.Context, deactivatedBefore time.Time) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id FROM accounts
		WHERE state = 'self_killed' AND deactivated_at <= $1
		ORDER BY deactivated_at`, deactivatedBefore)
	if err != nil {
		return nil, fmt.Errorf("purge candidate query failed: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (t *pgTx) AppendTransaction(ctx context.Context, rec *domain.Transaction) error {
	var ref any
	if rec.ExternalRef != "" {
		ref = rec.ExternalRef
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (from_account_id, to_account_id, amount, kind, reason, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		nullableID(rec.From), nullableID(rec.To), rec.Amount, string(rec.Kind), rec.Reason, ref, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("transaction insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, from_account_id, to_account_id, amount, kind, reason, external_ref, created_at
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY id DESC LIMIT $2`, accountID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			rec      domain.Transaction
			from, to uuid.NullUUID
			kind     string
			ref      *string
		)
		if err := rows.Scan(&rec.ID, &from, &to, &rec.Amount, &kind, &rec.Reason, &ref, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("transaction scan failed: %w", err)
		}
		rec.From, rec.To, rec.Kind = from.UUID, to.UUID, domain.TransactionKind(kind)
		if ref != nil {
			rec.ExternalRef = *ref
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *pgTx) CountRescues(ctx context.Context, ghostID uuid.UUID) (int64, error) {
	var n int64
	if err := t.tx.QueryRow(ctx, "SELECT COUNT(*) FROM cpr_log WHERE ghost_id = $1", ghostID).Scan(&n); err != nil {
		return 0, fmt.Errorf("rescue count failed: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertRescue(ctx context.Context, r *domain.Rescue) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cpr_log (ghost_id, rescuer_id, batch_number, created_at) VALUES ($1, $2, $3, $4)`,
		r.GhostID, r.RescuerID, r.Batch, r.CreatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("rescue insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) ListRescues(ctx context.Context, ghostID uuid.UUID) ([]domain.Rescue, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT ghost_id, rescuer_id, batch_number, shrine_link_viewed, shrine_link_viewed_at, created_at
		FROM cpr_log WHERE ghost_id = $1
		ORDER BY batch_number, created_at`, ghostID)
	if err != nil {
		return nil, fmt.Errorf("rescue query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Rescue
	for rows.Next() {
		var r domain.Rescue
		if err := rows.Scan(&r.GhostID, &r.RescuerID, &r.Batch, &r.ShrineViewed, &r.ViewedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("rescue scan failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkRescueViewed(ctx context.Context, ghostID, rescuerID uuid.UUID, batch int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cpr_log SET shrine_link_viewed = TRUE, shrine_link_viewed_at = $4
		WHERE ghost_id = $1 AND rescuer_id = $2 AND batch_number = $3 AND NOT shrine_link_viewed`,
		ghostID, rescuerID, batch, at)
	if err != nil {
		return false, fmt.Errorf("rescue update failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const pgBreakColumns = "id, coma_account_id, requester_id, message, status, created_at, responded_at"

func scanPgBreak(row pgx.Row) (*domain.BreakRequest, error) {
	var (
		b      domain.BreakRequest
		status string
	)
	if err := row.Scan(&b.ID, &b.ComaID, &b.RequesterID, &b.Message, &status, &b.CreatedAt, &b.RespondedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Status = domain.BreakStatus(status)
	return &b, nil
}

func (t *pgTx) InsertBreak(ctx context.Context, b *domain.BreakRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO fourth_wall_breaks (id, coma_account_id, requester_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.ComaID, b.RequesterID, b.Message, string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("break insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) LockBreak(ctx context.Context, id uuid.UUID) (*domain.BreakRequest, error) {
	b, err := scanPgBreak(t.tx.QueryRow(ctx,
		"SELECT "+pgBreakColumns+" FROM fourth_wall_breaks WHERE id = $1 FOR UPDATE", id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("break query failed: %w", err)
	}
	return b, err
}

func (t *pgTx) ResolveBreak(ctx context.Context, id uuid.UUID, status domain.BreakStatus, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE fourth_wall_breaks SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'`, id, string(status), at)
	if err != nil {
		return false, fmt.Errorf("break update failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ListPendingBreaks(ctx context.Context, comaID uuid.UUID) ([]domain.BreakRequest, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+pgBreakColumns+` FROM fourth_wall_breaks
		WHERE coma_account_id = $1 AND status = 'pending' ORDER BY created_at DESC`, comaID)
	if err != nil {
		return nil, fmt.Errorf("break query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.BreakRequest
	for rows.Next() {
		b, err := scanPgBreak(rows)
		if err != nil {
			return nil, fmt.Errorf("break scan failed: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *pgTx) HasAcceptedBreak(ctx context.Context, requesterID, comaID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM fourth_wall_breaks
		WHERE requester_id = $1 AND coma_account_id = $2 AND status = 'accepted')`,
		requesterID, comaID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("break query failed: %w", err)
	}
	return ok, nil
}

func (t *pgTx) AppendFeed(ctx context.Context, m *domain.FeedMessage) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO wall_messages (author_id, author, content, kind, whisper, permanent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		feedAuthor(m.AuthorID), m.Author, m.Content, string(m.Kind), m.Whisper, m.Permanent, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("feed insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) ListFeed(ctx context.Context, limit int) ([]domain.FeedMessage, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, author_id, author, content, kind, whisper, permanent, created_at
		FROM wall_messages ORDER BY id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("feed query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedMessage
	for rows.Next() {
		var (
			m      domain.FeedMessage
			author uuid.NullUUID
			kind   string
		)
		if err := rows.Scan(&m.ID, &author, &m.Author, &m.Content, &kind, &m.Whisper, &m.Permanent, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("feed scan failed: %w", err)
		}
		m.AuthorID, m.Kind = feedAuthorID(author), domain.FeedKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO direct_messages (sender_id, recipient_id, content, whisper, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.SenderID, m.RecipientID, m.Content, m.Whisper, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("direct message insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) CountActiveGigs(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, "SELECT COUNT(*) FROM gigs WHERE owner_id = $1 AND NOT completed", ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("gig count failed: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertGig(ctx context.Context, g *domain.Gig) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO gigs (id, owner_id, title, description, reward, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.OwnerID, g.Title, g.Description, g.Reward, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("gig insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) LockGig(ctx context.Context, id uuid.UUID) (*domain.Gig, error) {
	var g domain.Gig
	err := t.tx.QueryRow(ctx, `
		SELECT id, owner_id, title, description, reward, completed, created_at, completed_at
		FROM gigs WHERE id = $1 FOR UPDATE`, id).
		Scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &g.Reward, &g.Completed, &g.CreatedAt, &g.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gig query failed: %w", err)
	}
	return &g, nil
}

func (t *pgTx) CompleteGig(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, "UPDATE gigs SET completed = TRUE, completed_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("gig update failed: %w", err)
	}
	return nil
}

func (t *pgTx) GetReveal(ctx context.Context, viewerID, viewedID uuid.UUID) (*domain.Reveal, error) {
	var r domain.Reveal
	err := t.tx.QueryRow(ctx, `
		SELECT viewer_id, viewed_id, picture_url, revealed_at
		FROM profile_reveals WHERE viewer_id = $1 AND viewed_id = $2`, viewerID, viewedID).
		Scan(&r.ViewerID, &r.ViewedID, &r.PictureURL, &r.RevealedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reveal query failed: %w", err)
	}
	return &r, nil
}

func (t *pgTx) UpsertReveal(ctx context.Context, r *domain.Reveal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO profile_reveals (viewer_id, viewed_id, picture_url, revealed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (viewer_id, viewed_id)
		DO UPDATE SET picture_url = EXCLUDED.picture_url, revealed_at = EXCLUDED.revealed_at`,
		r.ViewerID, r.ViewedID, r.PictureURL, r.RevealedAt)
	if err != nil {
		return fmt.Errorf("reveal upsert failed: %w", err)
	}
	return nil
}

func (t *pgTx) GetIdempotency(ctx context.Context, key string) (*domain.IdempotencyPayload, error) {
	p := domain.IdempotencyPayload{Key: key}
	var body []byte
	err := t.tx.QueryRow(ctx, `
		SELECT request_hash, status, COALESCE(response_status, 0), response_body
		FROM idempotency_keys WHERE key = $1`, key).
		Scan(&p.RequestHash, &p.Status, &p.ResponseStatus, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	p.ResponseBody = body
	return &p, nil
}

func (t *pgTx) ReserveIdempotency(ctx context.Context, key, requestHash string) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')",
		key, requestHash)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (t *pgTx) CompleteIdempotency(ctx context.Context, key string, status int, body []byte) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE idempotency_keys SET status = 'completed', response_status = $2, response_body = $3
		WHERE key = $1`, key, status, body)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
