package surgery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const operationCols = `id, visit_id, name, surgeon_id, resource_id, scheduled_time, duration_minutes, status,
	COALESCE(result, ''), notes, checklist, started_at, performed_at, created_at, updated_at`

func (r *repoPG) scanOperation(row pgx.Row) (*Operation, error) {
	var o Operation
	err := row.Scan(&o.ID, &o.VisitID, &o.Name, &o.SurgeonID, &o.ResourceID, &o.ScheduledTime,
		&o.DurationMinutes, &o.Status, &o.Result, &o.Notes, &o.Checklist, &o.StartedAt, &o.PerformedAt,
		&o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

// scheduledEnd is stored so the exclusion constraint can index the window.
func scheduledEnd(o *Operation) *time.Time {
	w, ok := o.Window()
	if !ok {
		return nil
	}
	return &w.End
}

func nullResult(res Result) *string {
	if res == "" {
		return nil
	}
	s := string(res)
	return &s
}

func (r *repoPG) Create(ctx context.Context, o *Operation) error {
	o.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO operation (id, visit_id, name, surgeon_id, resource_id, scheduled_time, scheduled_end,
			duration_minutes, status, result, notes, checklist, started_at, performed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		o.ID, o.VisitID, o.Name, o.SurgeonID, o.ResourceID, o.ScheduledTime, scheduledEnd(o),
		o.DurationMinutes, o.Status, nullResult(o.Result), o.Notes, o.Checklist, o.StartedAt, o.PerformedAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	return db.MapConstraintError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Operation, error) {
	q := `SELECT ` + operationCols + ` FROM operation WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	o, err := r.scanOperation(r.conn(ctx).QueryRow(ctx, q, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("operation", id.String())
	}
	return o, err
}

func (r *repoPG) Update(ctx context.Context, o *Operation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE operation SET name=$2, surgeon_id=$3, resource_id=$4, scheduled_time=$5, scheduled_end=$6,
			duration_minutes=$7, status=$8, result=$9, notes=$10, checklist=$11, started_at=$12,
			performed_at=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Name, o.SurgeonID, o.ResourceID, o.ScheduledTime, scheduledEnd(o),
		o.DurationMinutes, o.Status, nullResult(o.Result), o.Notes, o.Checklist, o.StartedAt, o.PerformedAt,
	).Scan(&o.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("operation", o.ID.String())
	}
	return db.MapConstraintError(err)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Operation, int, error) {
	var clauses []string
	var args []interface{}
	add := func(expr string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}
	if f.ResourceID != nil {
		add("resource_id = $%d", *f.ResourceID)
	}
	if f.VisitID != nil {
		add("visit_id = $%d", *f.VisitID)
	}
	if f.SurgeonID != nil {
		add("surgeon_id = $%d", *f.SurgeonID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM operation`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM operation%s ORDER BY scheduled_time NULLS LAST, created_at LIMIT $%d OFFSET $%d`,
		operationCols, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Operation
	for rows.Next() {
		o, err := r.scanOperation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Overlapping(ctx context.Context, roomID uuid.UUID, w clock.Window, exclude uuid.UUID) ([]*Operation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+operationCols+` FROM operation
		WHERE resource_id = $1 AND id <> $2
		  AND status IN ('SCHEDULED', 'IN_PROGRESS')
		  AND scheduled_time < $4 AND scheduled_end > $3
		ORDER BY scheduled_time`,
		roomID, exclude, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Operation
	for rows.Next() {
		o, err := r.scanOperation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *repoPG) ResourceUsage(ctx context.Context, resourceID uuid.UUID) (registry.Usage, error) {
	var total, active int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status IN ('SCHEDULED', 'IN_PROGRESS'))
		FROM operation WHERE resource_id = $1`, resourceID,
	).Scan(&total, &active)
	if err != nil {
		return registry.Usage{}, err
	}
	return usage(total, active), nil
}

func usage(total, active int) registry.Usage {
	u := registry.Usage{Referenced: total > 0, Holding: active > 0}
	switch {
	case u.Holding:
		u.By = "an active operation"
	case u.Referenced:
		u.By = "operation history"
	}
	return u
}
