package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/franchise-ops/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the ledger.
type TxRepository interface {
	GetItemsForUpdate(ctx context.Context, franchiseID string, productIDs []string) (map[string]Item, error)
	SaveStock(ctx context.Context, franchiseID, productID string, stock int64, at time.Time) error
	InsertItem(ctx context.Context, item Item) error
	UpsertItem(ctx context.Context, item Item) error
}

type txRepo struct {
	q db.DBTX
}

// NewTxRepository binds the inventory queries to an open transaction owned
// by another package.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const itemColumns = `product_id, franchise_id, name, category, current_stock, mbq, unit, price, last_updated`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.FranchiseID, &item.Name, &item.Category, &item.CurrentStock, &item.MBQ, &item.Unit, &item.Price, &item.LastUpdated)
	return item, err
}

// ListItems returns every item of a franchise ordered by name.
func (r *Repository) ListItems(ctx context.Context, franchiseID string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE franchise_id = $1 ORDER BY name, product_id`, franchiseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListFranchises returns every franchise that holds at least one SKU.
func (r *Repository) ListFranchises(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT franchise_id FROM inventory_items ORDER BY franchise_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetItem fetches one SKU.
func (r *Repository) GetItem(ctx context.Context, franchiseID, productID string) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE franchise_id = $1 AND product_id = $2`, franchiseID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepo) GetItemsForUpdate(ctx context.Context, franchiseID string, productIDs []string) (map[string]Item, error) {
	rows, err := r.q.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE franchise_id = $1 AND product_id = ANY($2) ORDER BY product_id FOR UPDATE`, franchiseID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make(map[string]Item, len(productIDs))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items[item.ID] = item
	}
	return items, rows.Err()
}

func (r *txRepo) SaveStock(ctx context.Context, franchiseID, productID string, stock int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE inventory_items SET current_stock = $3, last_updated = $4 WHERE franchise_id = $1 AND product_id = $2`, franchiseID, productID, stock, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) error {
	_, err := r.q.Exec(ctx, `INSERT INTO inventory_items (`+itemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.FranchiseID, item.Name, item.Category, item.CurrentStock, item.MBQ, item.Unit, item.Price, item.LastUpdated)
	return err
}

// UpsertItem maintains catalogue fields; stock is only written on insert.
func (r *txRepo) UpsertItem(ctx context.Context, item Item) error {
	_, err := r.q.Exec(ctx, `INSERT INTO inventory_items (`+itemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (franchise_id, product_id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, mbq = EXCLUDED.mbq, unit = EXCLUDED.unit, price = EXCLUDED.price, last_updated = EXCLUDED.last_updated`,
		item.ID, item.FranchiseID, item.Name, item.Category, item.CurrentStock, item.MBQ, item.Unit, item.Price, item.LastUpdated)
	return err
}
