package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore is the single-node backend. Transactions begin IMMEDIATE and the
// pool holds one connection, so units of work are fully serialised.
type SQLiteStore struct {
	db *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func ptrMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

type sqliteTx struct {
	tx *sql.Tx
}

const sqliteAccountColumns = `id, username, balance, state, verified, role, coma_reason, coma_entered_at,
	coma_exited_at, coma_refills, coma_refills_updated_at, deactivated_at, shrine_message, shrine_link,
	last_shrine_edit_at, last_post_at, created_at`

func scanSQLiteAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var (
		a                            domain.Account
		state, role, reason          string
		entered, exited, deactivated sql.NullInt64
		shrineEdit, lastPost         sql.NullInt64
		refillsUpdated, created      int64
	)
	err := row.Scan(&a.ID, &a.Username, &a.Balance, &state, &a.Verified, &role, &reason,
		&entered, &exited, &a.ComaRefills, &refillsUpdated, &deactivated,
		&a.ShrineMessage, &a.ShrineLink, &shrineEdit, &lastPost, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.State = domain.LifecycleState(state)
	a.Role = domain.Role(role)
	a.ComaReason = domain.ComaReason(reason)
	a.ComaEnteredAt = ptrMillis(entered)
	a.ComaExitedAt = ptrMillis(exited)
	a.DeactivatedAt = ptrMillis(deactivated)
	a.LastShrineEditAt = ptrMillis(shrineEdit)
	a.LastPostAt = ptrMillis(lastPost)
	a.RefillsUpdatedAt = fromMillis(refillsUpdated)
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, a *domain.Account) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, balance, state, verified, role, coma_refills,
			coma_refills_updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Balance, string(a.State), a.Verified, string(a.Role), a.ComaRefills,
		toMillis(a.RefillsUpdatedAt), toMillis(a.CreatedAt))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("account insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := scanSQLiteAccount(t.tx.QueryRowContext(ctx,
		"SELECT "+sqliteAccountColumns+" FROM accounts WHERE id = ?", id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	return a, err
}

// LockAccounts reads the rows; the IMMEDIATE transaction already holds the write lock.
func (t *sqliteTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	out := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sortedIDs(ids) {
		a, err := t.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (t *sqliteTx) Debit(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance = balance - ?
		WHERE id = ? AND balance >= ? AND state <> 'ghost_deleted'
		RETURNING balance`, amount, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit failed: %w", err)
	}
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	if a.IsDeleted() {
		return 0, ErrNotFound
	}
	return 0, ErrInsufficientFunds
}

func (t *sqliteTx) Credit(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance = balance + ?
		WHERE id = ? AND state <> 'ghost_deleted'
		RETURNING balance`, amount, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("credit failed: %w", err)
	}
	return balance, nil
}

func (t *sqliteTx) SaveAccount(ctx context.Context, a *domain.Account) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET
			username = ?, state = ?, verified = ?, role = ?, coma_reason = ?,
			coma_entered_at = ?, coma_exited_at = ?, coma_refills = ?, coma_refills_updated_at = ?,
			deactivated_at = ?, shrine_message = ?, shrine_link = ?, last_shrine_edit_at = ?,
			last_post_at = ?
		WHERE id = ?`,
		a.Username, string(a.State), a.Verified, string(a.Role), string(a.ComaReason),
		nullMillis(a.ComaEnteredAt), nullMillis(a.ComaExitedAt), a.ComaRefills, toMillis(a.RefillsUpdatedAt),
		nullMillis(a.DeactivatedAt), a.ShrineMessage, a.ShrineLink, nullMillis(a.LastShrineEditAt),
		nullMillis(a.LastPostAt), a.ID)
	if err != nil {
		return fmt.Errorf("account update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) ListPurgeCandidates(ctx context.Context, deactivatedBefore time.Time) ([]uuid.UUID, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id FROM accounts
		WHERE state = 'self_killed' AND deactivated_at <= ?
		ORDER BY deactivated_at`, toMillis(deactivatedBefore))
	if err != nil {
		return nil, fmt.Errorf("purge candidate query failed: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("purge candidate scan failed: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *sqliteTx) AppendTransaction(ctx context.Context, rec *domain.Transaction) error {
	var ref any
	if rec.ExternalRef != "" {
		ref = rec.ExternalRef
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO transactions (from_account_id, to_account_id, amount, kind, reason, external_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		nullableID(rec.From), nullableID(rec.To), rec.Amount, string(rec.Kind), rec.Reason, ref,
		toMillis(rec.CreatedAt),
	).Scan(&rec.ID)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("transaction insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, from_account_id, to_account_id, amount, kind, reason, external_ref, created_at
		FROM transactions
		WHERE from_account_id = ? OR to_account_id = ?
		ORDER BY id DESC LIMIT ?`, accountID, accountID, clampLimit(limit))
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
			ref      sql.NullString
			created  int64
		)
		if err := rows.Scan(&rec.ID, &from, &to, &rec.Amount, &kind, &rec.Reason, &ref, &created); err != nil {
			return nil, fmt.Errorf("transaction scan failed: %w", err)
		}
		rec.From, rec.To, rec.Kind = from.UUID, to.UUID, domain.TransactionKind(kind)
		rec.ExternalRef = ref.String
		rec.CreatedAt = fromMillis(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *sqliteTx) CountRescues(ctx context.Context, ghostID uuid.UUID) (int64, error) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM cpr_log WHERE ghost_id = ?", ghostID).Scan(&n); err != nil {
		return 0, fmt.Errorf("rescue count failed: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) InsertRescue(ctx context.Context, r *domain.Rescue) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO cpr_log (ghost_id, rescuer_id, batch_number, created_at) VALUES (?, ?, ?, ?)",
		r.GhostID, r.RescuerID, r.Batch, toMillis(r.CreatedAt))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("rescue insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListRescues(ctx context.Context, ghostID uuid.UUID) ([]domain.Rescue, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ghost_id, rescuer_id, batch_number, shrine_link_viewed, shrine_link_viewed_at, created_at
		FROM cpr_log WHERE ghost_id = ?
		ORDER BY batch_number, created_at`, ghostID)
	if err != nil {
		return nil, fmt.Errorf("rescue query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Rescue
	for rows.Next() {
		var (
			r       domain.Rescue
			viewed  sql.NullInt64
			created int64
		)
		if err := rows.Scan(&r.GhostID, &r.RescuerID, &r.Batch, &r.ShrineViewed, &viewed, &created); err != nil {
			return nil, fmt.Errorf("rescue scan failed: %w", err)
		}
		r.ViewedAt = ptrMillis(viewed)
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) MarkRescueViewed(ctx context.Context, ghostID, rescuerID uuid.UUID, batch int64, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cpr_log SET shrine_link_viewed = 1, shrine_link_viewed_at = ?
		WHERE ghost_id = ? AND rescuer_id = ? AND batch_number = ? AND shrine_link_viewed = 0`,
		toMillis(at), ghostID, rescuerID, batch)
	if err != nil {
		return false, fmt.Errorf("rescue update failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const sqliteBreakColumns = "id, coma_account_id, requester_id, message, status, created_at, responded_at"

func scanSQLiteBreak(row interface{ Scan(...any) error }) (*domain.BreakRequest, error) {
	var (
		b         domain.BreakRequest
		status    string
		created   int64
		responded sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.ComaID, &b.RequesterID, &b.Message, &status, &created, &responded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Status = domain.BreakStatus(status)
	b.CreatedAt = fromMillis(created)
	b.RespondedAt = ptrMillis(responded)
	return &b, nil
}

func (t *sqliteTx) InsertBreak(ctx context.Context, b *domain.BreakRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO fourth_wall_breaks (id, coma_account_id, requester_id, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.ComaID, b.RequesterID, b.Message, string(b.Status), toMillis(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("break insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) LockBreak(ctx context.Context, id uuid.UUID) (*domain.BreakRequest, error) {
	b, err := scanSQLiteBreak(t.tx.QueryRowContext(ctx,
		"SELECT "+sqliteBreakColumns+" FROM fourth_wall_breaks WHERE id = ?", id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("break query failed: %w", err)
	}
	return b, err
}

func (t *sqliteTx) ResolveBreak(ctx context.Context, id uuid.UUID, status domain.BreakStatus, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE fourth_wall_breaks SET status = ?, responded_at = ?
		WHERE id = ? AND status = 'pending'`, string(status), toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("break update failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqliteTx) ListPendingBreaks(ctx context.Context, comaID uuid.UUID) ([]domain.BreakRequest, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT "+sqliteBreakColumns+` FROM fourth_wall_breaks
		WHERE coma_account_id = ? AND status = 'pending' ORDER BY created_at DESC`, comaID)
	if err != nil {
		return nil, fmt.Errorf("break query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.BreakRequest
	for rows.Next() {
		b, err := scanSQLiteBreak(rows)
		if err != nil {
			return nil, fmt.Errorf("break scan failed: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *sqliteTx) HasAcceptedBreak(ctx context.Context, requesterID, comaID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM fourth_wall_breaks
		WHERE requester_id = ? AND coma_account_id = ? AND status = 'accepted')`,
		requesterID, comaID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("break query failed: %w", err)
	}
	return ok, nil
}

func (t *sqliteTx) AppendFeed(ctx context.Context, m *domain.FeedMessage) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO wall_messages (author_id, author, content, kind, whisper, permanent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		feedAuthor(m.AuthorID), m.Author, m.Content, string(m.Kind), m.Whisper, m.Permanent,
		toMillis(m.CreatedAt),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("feed insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListFeed(ctx context.Context, limit int) ([]domain.FeedMessage, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, author_id, author, content, kind, whisper, permanent, created_at
		FROM wall_messages ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("feed query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedMessage
	for rows.Next() {
		var (
			m       domain.FeedMessage
			author  uuid.NullUUID
			kind    string
			created int64
		)
		if err := rows.Scan(&m.ID, &author, &m.Author, &m.Content, &kind, &m.Whisper, &m.Permanent, &created); err != nil {
			return nil, fmt.Errorf("feed scan failed: %w", err)
		}
		m.AuthorID, m.Kind = feedAuthorID(author), domain.FeedKind(kind)
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *sqliteTx) InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO direct_messages (sender_id, recipient_id, content, whisper, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		m.SenderID, m.RecipientID, m.Content, m.Whisper, toMillis(m.CreatedAt)).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("direct message insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) CountActiveGigs(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM gigs WHERE owner_id = ? AND completed = 0", ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("gig count failed: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) InsertGig(ctx context.Context, g *domain.Gig) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO gigs (id, owner_id, title, description, reward, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.OwnerID, g.Title, g.Description, g.Reward, toMillis(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("gig insert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) LockGig(ctx context.Context, id uuid.UUID) (*domain.Gig, error) {
	var (
		g          domain.Gig
		created    int64
		completeAt sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, reward, completed, created_at, completed_at
		FROM gigs WHERE id = ?`, id).
		Scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &g.Reward, &g.Completed, &created, &completeAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gig query failed: %w", err)
	}
	g.CreatedAt = fromMillis(created)
	g.CompletedAt = ptrMillis(completeAt)
	return &g, nil
}

func (t *sqliteTx) CompleteGig(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE gigs SET completed = 1, completed_at = ? WHERE id = ?", toMillis(at), id)
	if err != nil {
		return fmt.Errorf("gig update failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetReveal(ctx context.Context, viewerID, viewedID uuid.UUID) (*domain.Reveal, error) {
	var (
		r  domain.Reveal
		at int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT viewer_id, viewed_id, picture_url, revealed_at
		FROM profile_reveals WHERE viewer_id = ? AND viewed_id = ?`, viewerID, viewedID).
		Scan(&r.ViewerID, &r.ViewedID, &r.PictureURL, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reveal query failed: %w", err)
	}
	r.RevealedAt = fromMillis(at)
	return &r, nil
}

func (t *sqliteTx) UpsertReveal(ctx context.Context, r *domain.Reveal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO profile_reveals (viewer_id, viewed_id, picture_url, revealed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (viewer_id, viewed_id)
		DO UPDATE SET picture_url = excluded.picture_url, revealed_at = excluded.revealed_at`,
		r.ViewerID, r.ViewedID, r.PictureURL, toMillis(r.RevealedAt))
	if err != nil {
		return fmt.Errorf("reveal upsert failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetIdempotency(ctx context.Context, key string) (*domain.IdempotencyPayload, error) {
	p := domain.IdempotencyPayload{Key: key}
	var body []byte
	err := t.tx.QueryRowContext(ctx, `
		SELECT request_hash, status, COALESCE(response_status, 0), response_body
		FROM idempotency_keys WHERE key = ?`, key).
		Scan(&p.RequestHash, &p.Status, &p.ResponseStatus, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	p.ResponseBody = body
	return &p, nil
}

func (t *sqliteTx) ReserveIdempotency(ctx context.Context, key, requestHash string) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status, created_at) VALUES (?, ?, 'in_progress', ?)",
		key, requestHash, toMillis(time.Now()))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (t *sqliteTx) CompleteIdempotency(ctx context.Context, key string, status int, body []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE idempotency_keys SET status = 'completed', response_status = ?, response_body = ?
		WHERE key = ?`, status, body, key)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
