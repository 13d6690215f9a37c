package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/protocol6713/internal/config"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/logging"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/service"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

var (
	totalAccounts  int
	initialBalance int64
	outFile        string
)

func init() {
	flag.IntVar(&totalAccounts, "accounts", 1000, "Number of accounts to seed")
	flag.Int64Var(&initialBalance, "balance", 500, "Talents granted to each seeded account")
	flag.StringVar(&outFile, "out", "accounts.txt", "File receiving the seeded account ids, one per line")
}

func main() {
	flag.Parse()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Default(cfg.LogLevel, "seeder")

	ctx := context.Background()
	var ids []uuid.UUID
	switch cfg.DBDriver {
	case store.DriverPostgres:
		ids, err = seedPostgres(ctx, cfg.DBSource, logger)
	default:
		ids, err = seedService(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	if err := writeIDs(outFile, ids); err != nil {
		logger.Error("writing account ids failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "accounts", len(ids), "file", outFile)
}

// seedPostgres bulk-loads accounts and their signup grants with COPY inside
// one transaction, so the ledger still balances.
func seedPostgres(ctx context.Context, dsn string, logger *slog.Logger) ([]uuid.UUID, error) {
	// Applies the schema when the database is fresh.
	st, err := store.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	st.Close()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM accounts WHERE username LIKE 'seed-%'").Scan(&count); err != nil {
		return nil, err
	}
	if count >= totalAccounts {
		logger.Info("database already seeded, skipping", "accounts", count)
		return existingSeedIDs(ctx, conn)
	}

	logger.Info("generating accounts", "accounts", totalAccounts, "balance", initialBalance)
	now := time.Now().UTC()
	ids := make([]uuid.UUID, totalAccounts)
	accounts := make([][]any, totalAccounts)
	grants := make([][]any, 0, totalAccounts)
	for i := range totalAccounts {
		ids[i] = uuid.New()
		accounts[i] = []any{ids[i], fmt.Sprintf("seed-%s", ids[i].String()[:8]), initialBalance, true, now, now}
		if initialBalance > 0 {
			grants = append(grants, []any{ids[i], initialBalance, string(domain.KindGift), "seed grant", now})
		}
	}

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"accounts"},
			[]string{"id", "username", "balance", "verified", "coma_refills_updated_at", "created_at"},
			pgx.CopyFromRows(accounts),
		)
		if err != nil {
			return fmt.Errorf("bulk insert accounts: %w", err)
		}
		logger.Info("accounts copied", "rows", n)

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"transactions"},
			[]string{"to_account_id", "amount", "kind", "reason", "created_at"},
			pgx.CopyFromRows(grants),
		)
		if err != nil {
			return fmt.Errorf("bulk insert grants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func existingSeedIDs(ctx context.Context, conn *pgx.Conn) ([]uuid.UUID, error) {
	rows, err := conn.Query(ctx, "SELECT id FROM accounts WHERE username LIKE 'seed-%' ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// seedService creates accounts one at a time through the service, for
// backends without a bulk path.
func seedService(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]uuid.UUID, error) {
	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	svc := service.New(st, service.WithLogger(logger))

	ids := make([]uuid.UUID, 0, totalAccounts)
	for i := range totalAccounts {
		acct, err := svc.CreateAccount(ctx, models.CreateAccountRequest{
			Username:       fmt.Sprintf("seed-%06d", i),
			Verified:       true,
			InitialBalance: initialBalance,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, acct.ID)
	}
	return ids, nil
}

func writeIDs(path string, ids []uuid.UUID) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return w.Flush()
}
