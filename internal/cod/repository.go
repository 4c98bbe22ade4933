package cod

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/franchise-ops/internal/platform/db"
)

// Repository persists COD transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertTransaction(ctx context.Context, record Transaction) error
	GetTransactionForUpdate(ctx context.Context, franchiseID, id string) (Transaction, error)
	MarkDeposited(ctx context.Context, franchiseID, id, bankReference string, at time.Time) error
}

type txRepo struct {
	q db.DBTX
}

// NewTxRepository binds COD queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const txColumns = `id, franchise_id, order_id, hotel_name, amount, collected_by, collected_at, status, bank_reference, deposit_date`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		record Transaction
		ref    *string
	)
	if err := row.Scan(&record.ID, &record.FranchiseID, &record.OrderID, &record.HotelName, &record.Amount,
		&record.CollectedBy, &record.Timestamp, &record.Status, &ref, &record.DepositDate); err != nil {
		return Transaction{}, err
	}
	if ref != nil {
		record.BankReference = *ref
	}
	return record, nil
}

// ListTransactions returns transactions matching filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, franchiseID string, filter Filter) ([]Transaction, error) {
	var (
		where = []string{"franchise_id = $1"}
		args  = []any{franchiseID}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("collected_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("collected_at <= $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+txColumns+` FROM cod_transactions WHERE `+strings.Join(where, " AND ")+` ORDER BY collected_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertTransaction(ctx context.Context, record Transaction) error {
	_, err := r.q.Exec(ctx, `INSERT INTO cod_transactions (`+txColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL)`,
		record.ID, record.FranchiseID, record.OrderID, record.HotelName, record.Amount, record.CollectedBy, record.Timestamp, string(record.Status))
	return err
}

func (r *txRepo) GetTransactionForUpdate(ctx context.Context, franchiseID, id string) (Transaction, error) {
	record, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+txColumns+` FROM cod_transactions WHERE franchise_id = $1 AND id = $2 FOR UPDATE`, franchiseID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return record, nil
}

func (r *txRepo) MarkDeposited(ctx context.Context, franchiseID, id, bankReference string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE cod_transactions SET status = 'deposited', bank_reference = $3, deposit_date = $4 WHERE franchise_id = $1 AND id = $2 AND status = 'pending'`,
		franchiseID, id, bankReference, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
