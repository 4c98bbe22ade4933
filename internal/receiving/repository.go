package receiving

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/platform/db"
)

// Repository persists purchase orders, GRNs and the vendor ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	FindPurchaseOrderForUpdate(ctx context.Context, franchiseID, ref string) (PurchaseOrder, error)
	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) error
	DeletePurchaseOrder(ctx context.Context, franchiseID, id string) error
	InsertGRN(ctx context.Context, grn GRN) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error
	Inventory() inventory.TxRepository
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

// ListPurchaseOrders returns open purchase orders.
func (r *Repository) ListPurchaseOrders(ctx context.Context, franchiseID string) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, po_number, franchise_id, vendor, items, created_at FROM purchase_orders WHERE franchise_id = $1 ORDER BY created_at, po_number`, franchiseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(&po.ID, &po.PONumber, &po.FranchiseID, &po.Vendor, &po.Items, &po.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

const grnColumns = `id, franchise_id, po_number, vendor, received_date, po_matched, items, payment_summary, created_at`

func scanGRN(row pgx.Row) (GRN, error) {
	var g GRN
	err := row.Scan(&g.ID, &g.FranchiseID, &g.PONumber, &g.Vendor, &g.ReceivedDate, &g.POMatched, &g.Items, &g.PaymentSummary, &g.CreatedAt)
	return g, err
}

// ListGRNs returns GRNs newest first.
func (r *Repository) ListGRNs(ctx context.Context, franchiseID string) ([]GRN, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grnColumns+` FROM grns WHERE franchise_id = $1 ORDER BY received_date DESC, created_at DESC`, franchiseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GRN
	for rows.Next() {
		g, err := scanGRN(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGRN fetches one GRN.
func (r *Repository) GetGRN(ctx context.Context, franchiseID, id string) (GRN, error) {
	g, err := scanGRN(r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM grns WHERE franchise_id = $1 AND id = $2`, franchiseID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GRN{}, ErrGRNNotFound
		}
		return GRN{}, err
	}
	return g, nil
}

// ListLedgerEntries returns vendor ledger entries in posting order.
func (r *Repository) ListLedgerEntries(ctx context.Context, franchiseID string) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, franchise_id, entry_date, type, vendor, reference, grn_id, amount, original_amount, deductions, status
FROM vendor_ledger_entries WHERE franchise_id = $1 ORDER BY entry_date, seq`, franchiseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.FranchiseID, &e.Date, &e.Type, &e.Vendor, &e.Reference, &e.GRNID, &e.Amount, &e.OriginalAmount, &e.Deductions, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepo) Inventory() inventory.TxRepository { return inventory.NewTxRepository(r.tx) }

// FindPurchaseOrderForUpdate matches by PO number first and falls back to id.
func (r *txRepo) FindPurchaseOrderForUpdate(ctx context.Context, franchiseID, ref string) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := r.tx.QueryRow(ctx, `SELECT id, po_number, franchise_id, vendor, items, created_at FROM purchase_orders
WHERE franchise_id = $1 AND (po_number = $2 OR id = $2)
ORDER BY (po_number = $2) DESC LIMIT 1 FOR UPDATE`, franchiseID, ref).
		Scan(&po.ID, &po.PONumber, &po.FranchiseID, &po.Vendor, &po.Items, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPurchaseOrderNotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_orders (id, po_number, franchise_id, vendor, items, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		po.ID, po.PONumber, po.FranchiseID, po.Vendor, po.Items, po.CreatedAt)
	return err
}

func (r *txRepo) DeletePurchaseOrder(ctx context.Context, franchiseID, id string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE franchise_id = $1 AND id = $2`, franchiseID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseOrderNotFound
	}
	return nil
}

func (r *txRepo) InsertGRN(ctx context.Context, g GRN) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO grns (`+grnColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.FranchiseID, g.PONumber, g.Vendor, g.ReceivedDate, g.POMatched, g.Items, g.PaymentSummary, g.CreatedAt)
	return err
}

func (r *txRepo) InsertLedgerEntry(ctx context.Context, e LedgerEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO vendor_ledger_entries (id, franchise_id, entry_date, type, vendor, reference, grn_id, amount, original_amount, deductions, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.FranchiseID, e.Date, e.Type, e.Vendor, e.Reference, e.GRNID, e.Amount, e.OriginalAmount, e.Deductions, e.Status)
	return err
}
