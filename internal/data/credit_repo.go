package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/pgxutil"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// Advisory lock namespace for per-user ledger mutations. Serializing writes
// per user makes the balance check plus insert in Reserve atomic without
// table-level locking.
const advisoryLockLedgerMajor int64 = 3001

func advisoryLockLedgerMinor(userID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// CreditRepo provides database operations for the append-only credit ledger.
type CreditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewCreditRepo creates a new CreditRepo with the given database connection and configuration.
func NewCreditRepo(db *sql.DB, cfg RepoConfig) *CreditRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &CreditRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const ledgerColumns = `
  id,
  user_id,
  job_id,
  entry_type,
  amount,
  note,
  created_at
`

// GetBalance sums all ledger entries for the user. A user with no entries
// has balance zero.
func (r *CreditRepo) GetBalance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}

	var balance int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_ledger
		WHERE user_id = $1
	`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func lockLedgerForUser(ctx context.Context, tx *sql.Tx, userID string) error {
	minorKey := advisoryLockLedgerMinor(userID)
	if _, err := tx.ExecContext(ctx,
		"SELECT pg_advisory_xact_lock($1::integer, $2::integer)",
		advisoryLockLedgerMajor, minorKey,
	); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	return nil
}

// Reserve atomically places a hold against the user's balance. If the
// balance covers the amount a negative reserve entry is inserted and true is
// returned; otherwise nothing changes and false is returned. The per-user
// advisory lock makes the balance check and insert a single atomic unit, so
// two concurrent reservations can never overdraw.
func (r *CreditRepo) Reserve(ctx context.Context, params core.ReserveCreditsParams) (bool, error) {
	if params.UserID == "" {
		return false, errors.New("user id is required")
	}
	if params.JobID == "" {
		return false, errors.New("job id is required")
	}
	if params.Amount <= 0 {
		return false, model.ErrInvalidLedgerAmount
	}

	var reserved bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := lockLedgerForUser(ctx, tx, params.UserID); err != nil {
				return err
			}

			var balance int64
			if err := tx.QueryRowContext(ctx, `
				SELECT COALESCE(SUM(amount), 0)
				FROM credit_ledger
				WHERE user_id = $1
			`, params.UserID).Scan(&balance); err != nil {
				return fmt.Errorf("balance inside reserve: %w", err)
			}

			if balance < params.Amount {
				reserved = false
				return nil
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO credit_ledger(user_id, job_id, entry_type, amount, note, created_at)
				VALUES ($1, $2, 'reserve', $3, 'hold for job', $4)
			`, params.UserID, params.JobID, -params.Amount, r.timeProvider.Now().UTC()); err != nil {
				return fmt.Errorf("insert reserve entry: %w", err)
			}
			reserved = true
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return reserved, nil
}

// Finalize converts the job's reserve entry into a usage charge and refunds
// any unused remainder. The reserve row is retyped in place so the hold and
// the charge never coexist; a refund row is appended for the difference.
// A missing reservation is a silent no-op. Costs above the reservation are
// clamped to it: the user is never charged more than was held.
func (r *CreditRepo) Finalize(ctx context.Context, params core.FinalizeCreditsParams) error {
	if params.UserID == "" {
		return errors.New("user id is required")
	}
	if params.JobID == "" {
		return errors.New("job id is required")
	}
	if params.FinalCost < 0 {
		return model.ErrInvalidLedgerAmount
	}

	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := lockLedgerForUser(ctx, tx, params.UserID); err != nil {
				return err
			}

			var reservedAmount int64
			err := tx.QueryRowContext(ctx, `
				SELECT -amount
				FROM credit_ledger
				WHERE job_id = $1 AND entry_type = 'reserve'
				FOR UPDATE
			`, params.JobID).Scan(&reservedAmount)
			if errors.Is(err, sql.ErrNoRows) {
				// already finalized or released; nothing to do
				return nil
			}
			if err != nil {
				return fmt.Errorf("load reservation: %w", err)
			}

			finalCost := min(params.FinalCost, reservedAmount)

			if _, err := tx.ExecContext(ctx, `
				UPDATE credit_ledger
				SET entry_type = 'usage',
				    amount = $2,
				    note = 'final charge'
				WHERE job_id = $1 AND entry_type = 'reserve'
			`, params.JobID, -finalCost); err != nil {
				return fmt.Errorf("retype reserve to usage: %w", err)
			}

			remainder := reservedAmount - finalCost
			if remainder <= 0 {
				return nil
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO credit_ledger(user_id, job_id, entry_type, amount, note, created_at)
				VALUES ($1, $2, 'refund', $3, 'unused reservation', $4)
			`, params.UserID, params.JobID, remainder, r.timeProvider.Now().UTC()); err != nil {
				return fmt.Errorf("insert refund entry: %w", err)
			}
			return nil
		},
	})
}

// Release deletes the job's reserve entry, restoring the balance to its
// pre-reservation value. Idempotent: releasing a job with no reservation is
// a no-op.
func (r *CreditRepo) Release(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}

	if _, err := r.DB.ExecContext(ctx, `
		DELETE FROM credit_ledger
		WHERE job_id = $1 AND entry_type = 'reserve'
	`, jobID); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// Purchase appends a positive entry crediting the user. Billing webhook
// handlers map completed checkouts into this.
func (r *CreditRepo) Purchase(ctx context.Context, params core.PurchaseCreditsParams) (*model.LedgerEntry, error) {
	if params.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if params.Amount <= 0 {
		return nil, model.ErrInvalidLedgerAmount
	}

	query := `
		INSERT INTO credit_ledger(user_id, entry_type, amount, note, created_at)
		VALUES ($1, 'purchase', $2, $3, $4)
		RETURNING ` + ledgerColumns

	var entry *model.LedgerEntry
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			params.UserID, params.Amount, params.Note, r.timeProvider.Now().UTC())
		if qerr != nil {
			return fmt.Errorf("insert purchase: %w", qerr)
		}
		defer rows.Close()

		e, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.LedgerEntry])
		if cerr != nil {
			return fmt.Errorf("collect purchase entry: %w", cerr)
		}
		entry = e
		return nil
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

// EntriesForUser returns the user's most recent ledger entries.
func (r *CreditRepo) EntriesForUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}

	query := `
		SELECT ` + ledgerColumns + `
		FROM credit_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	return r.collectEntries(ctx, query, userID, limit)
}

// EntriesForJob returns every ledger entry tied to a job, oldest first.
func (r *CreditRepo) EntriesForJob(ctx context.Context, jobID string) ([]*model.LedgerEntry, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}

	query := `
		SELECT ` + ledgerColumns + `
		FROM credit_ledger
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`

	return r.collectEntries(ctx, query, jobID)
}

func (r *CreditRepo) collectEntries(ctx context.Context, query string, args ...any) ([]*model.LedgerEntry, error) {
	var result []*model.LedgerEntry
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query ledger entries: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.LedgerEntry])
		if err != nil {
			return fmt.Errorf("collect ledger entries: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}
