package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
)

type resourceRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &resourceRepoPG{pool: pool} }

func (r *resourceRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const resourceCols = `id, ward, number, type, availability, cleaning_status, created_at, updated_at`

func (r *resourceRepoPG) scanResource(row pgx.Row) (*Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.Ward, &res.Number, &res.Type, &res.Availability,
		&res.CleaningStatus, &res.CreatedAt, &res.UpdatedAt)
	return &res, err
}

func (r *resourceRepoPG) Create(ctx context.Context, res *Resource) error {
	res.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO resource (id, ward, number, type, availability, cleaning_status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		res.ID, res.Ward, res.Number, res.Type, res.Availability, res.CleaningStatus,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	return db.MapConstraintError(err)
}

// GetByID locks the row when called inside a transaction.
func (r *resourceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Resource, error) {
	q := `SELECT ` + resourceCols + ` FROM resource WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	res, err := r.scanResource(r.conn(ctx).QueryRow(ctx, q, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("resource", id.String())
	}
	return res, err
}

func (r *resourceRepoPG) Update(ctx context.Context, res *Resource) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE resource SET ward=$2, number=$3, type=$4, availability=$5, cleaning_status=$6, updated_at=NOW()
		WHERE id = $1`,
		res.ID, res.Ward, res.Number, res.Type, res.Availability, res.CleaningStatus)
	if err != nil {
		return db.MapConstraintError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("resource", res.ID.String())
	}
	return nil
}

func (r *resourceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM resource WHERE id = $1`, id)
	if err != nil {
		return db.MapConstraintError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("resource", id.String())
	}
	return nil
}

func (r *resourceRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Resource, int, error) {
	var where []string
	var args []interface{}
	idx := 1
	if f.Type != nil {
		where = append(where, fmt.Sprintf("type = $%d", idx))
		args = append(args, *f.Type)
		idx++
	}
	if f.Availability != nil {
		where = append(where, fmt.Sprintf("availability = $%d", idx))
		args = append(args, *f.Availability)
		idx++
	}
	if f.Ward != nil {
		where = append(where, fmt.Sprintf("ward = $%d", idx))
		args = append(args, *f.Ward)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM resource`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+resourceCols+` FROM resource%s ORDER BY ward, number LIMIT $%d OFFSET $%d`, clause, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Resource
	for rows.Next() {
		res, err := r.scanResource(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}
