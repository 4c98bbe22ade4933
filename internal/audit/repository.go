package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const timelineSelect = `SELECT occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE franchise_id = $1
  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
  AND ($4::text IS NULL OR actor_id = $4)
  AND ($5::text IS NULL OR entity = $5)
  AND ($6::text IS NULL OR action = $6)
ORDER BY occurred_at DESC, id DESC`

// PGRepository reads audit_logs through pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns one page of rows.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	args := append(filterArgs(arg.TimelineFilters), arg.Limit, arg.Offset)
	rows, err := r.pool.Query(ctx, timelineSelect+` LIMIT $7 OFFSET $8`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// TimelineAll returns every matching row.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSelect, filterArgs(filters)...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func filterArgs(f TimelineFilters) []any {
	return []any{f.FranchiseID, toPgTime(f.From), toPgTime(f.To), optionalText(f.Actor), optionalText(f.Entity), optionalText(f.Action)}
}

func collect(rows pgx.Rows) ([]TimelineRow, error) {
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
