package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/platform/db"
)

// Repository persists orders in PostgreSQL. Items, timeline and return
// requests live in JSONB columns of the order row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Inventory and Cash share
// the same transaction so stock and cash move with the order.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, franchiseID, id string) (Order, error)
	InsertOrder(ctx context.Context, order Order) error
	SaveOrder(ctx context.Context, order Order) error
	Inventory() inventory.TxRepository
	Cash() cod.TxRepository
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, franchise_id, hotel_name, status, items, total, payment_mode, delivery_partner_id,
number_of_packages, stock_deducted, delivered_at, created_at, timeline, return_requests`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.FranchiseID, &o.HotelName, &o.Status, &o.Items, &o.Total, &o.PaymentMode,
		&o.DeliveryPartnerID, &o.NumberOfPackages, &o.StockDeducted, &o.DeliveredAt, &o.CreatedAt,
		&o.Timeline, &o.ReturnRequests)
	return o, err
}

// ListOrders returns orders matching filter, newest first.
func (r *Repository) ListOrders(ctx context.Context, franchiseID string, filter Filter) ([]Order, error) {
	var (
		where = []string{"franchise_id = $1"}
		args  = []any{franchiseID}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentMode != "" {
		args = append(args, string(filter.PaymentMode))
		where = append(where, fmt.Sprintf("payment_mode = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOrder fetches one order.
func (r *Repository) GetOrder(ctx context.Context, franchiseID, id string) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE franchise_id = $1 AND id = $2`, franchiseID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func (r *txRepo) Inventory() inventory.TxRepository { return inventory.NewTxRepository(r.tx) }

func (r *txRepo) Cash() cod.TxRepository { return cod.NewTxRepository(r.tx) }

func (r *txRepo) GetOrderForUpdate(ctx context.Context, franchiseID, id string) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE franchise_id = $1 AND id = $2 FOR UPDATE`, franchiseID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func (r *txRepo) InsertOrder(ctx context.Context, o Order) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.FranchiseID, o.HotelName, string(o.Status), o.Items, o.Total, string(o.PaymentMode), o.DeliveryPartnerID,
		o.NumberOfPackages, o.StockDeducted, o.DeliveredAt, o.CreatedAt, o.Timeline, nonNil(o.ReturnRequests))
	return err
}

func (r *txRepo) SaveOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status = $3, delivery_partner_id = $4, number_of_packages = $5,
stock_deducted = $6, delivered_at = $7, timeline = $8, return_requests = $9, updated_at = now()
WHERE franchise_id = $1 AND id = $2`,
		o.FranchiseID, o.ID, string(o.Status), o.DeliveryPartnerID, o.NumberOfPackages, o.StockDeducted,
		o.DeliveredAt, o.Timeline, nonNil(o.ReturnRequests))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func nonNil(reqs []ReturnRequest) []ReturnRequest {
	if reqs == nil {
		return []ReturnRequest{}
	}
	return reqs
}
