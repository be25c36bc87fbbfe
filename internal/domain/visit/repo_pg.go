package visit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
)

// whereBuilder accumulates numbered predicates for dynamic filters.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(expr string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(expr, len(w.args)))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) page(limit, offset int) (string, []interface{}) {
	n := len(w.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), append(append([]interface{}{}, w.args...), limit, offset)
}

// =========== Visit Repository ===========

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository { return &visitRepoPG{pool: pool} }

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitCols = `id, patient_id, doctor_id, type, visit_date, slot, status, color_coding, chief_complaint, created_at, updated_at`

func (r *visitRepoPG) scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.Type, &v.Date, &v.Slot, &v.Status,
		&v.ColorCoding, &v.ChiefComplaint, &v.CreatedAt, &v.UpdatedAt)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit (id, patient_id, doctor_id, type, visit_date, slot, status, color_coding, chief_complaint)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.DoctorID, v.Type, v.Date, v.Slot, v.Status, v.ColorCoding, v.ChiefComplaint,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	return db.MapConstraintError(err)
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	q := `SELECT ` + visitCols + ` FROM visit WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	v, err := r.scanVisit(r.conn(ctx).QueryRow(ctx, q, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("visit", id.String())
	}
	return v, err
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE visit SET doctor_id=$2, type=$3, visit_date=$4, slot=$5, status=$6, color_coding=$7,
			chief_complaint=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.DoctorID, v.Type, v.Date, v.Slot, v.Status, v.ColorCoding, v.ChiefComplaint,
	).Scan(&v.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("visit", v.ID.String())
	}
	return db.MapConstraintError(err)
}

func (r *visitRepoPG) List(ctx context.Context, f VisitFilter, limit, offset int) ([]*Visit, int, error) {
	var w whereBuilder
	if f.DoctorID != nil {
		w.add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		w.add("patient_id = $%d", *f.PatientID)
	}
	if f.Date != nil {
		w.add("visit_date = $%d", *f.Date)
	}
	if f.Status != nil {
		w.add("status = $%d", *f.Status)
	}
	if f.Type != nil {
		w.add("type = $%d", *f.Type)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := w.page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visit`+w.sql()+` ORDER BY visit_date DESC, slot, created_at`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

// =========== Admission Repository ===========

type admissionRepoPG struct{ pool *pgxpool.Pool }

func NewAdmissionRepoPG(pool *pgxpool.Pool) AdmissionRepository { return &admissionRepoPG{pool: pool} }

func (r *admissionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const admissionCols = `id, visit_id, resource_id, admitted_at, discharged_at, bed_price, created_at, updated_at`

func (r *admissionRepoPG) scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.VisitID, &a.ResourceID, &a.AdmittedAt, &a.DischargedAt,
		&a.BedPrice, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admission (id, visit_id, resource_id, admitted_at, discharged_at, bed_price)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		a.ID, a.VisitID, a.ResourceID, a.AdmittedAt, a.DischargedAt, a.BedPrice,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.MapConstraintError(err)
}

func (r *admissionRepoPG) getOne(ctx context.Context, notFound error, where string, arg interface{}) (*Admission, error) {
	q := `SELECT ` + admissionCols + ` FROM admission WHERE ` + where
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	a, err := r.scanAdmission(r.conn(ctx).QueryRow(ctx, q, arg))
	if db.IsNoRows(err) {
		return nil, notFound
	}
	return a, err
}

func (r *admissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.getOne(ctx, apperr.NotFound("admission", id.String()), `id = $1`, id)
}

func (r *admissionRepoPG) OpenByResource(ctx context.Context, resourceID uuid.UUID) (*Admission, error) {
	return r.getOne(ctx, apperr.NotFound("open admission for resource", resourceID.String()),
		`resource_id = $1 AND discharged_at IS NULL`, resourceID)
}

func (r *admissionRepoPG) OpenByVisit(ctx context.Context, visitID uuid.UUID) (*Admission, error) {
	return r.getOne(ctx, apperr.NotFound("open admission for visit", visitID.String()),
		`visit_id = $1 AND discharged_at IS NULL`, visitID)
}

func (r *admissionRepoPG) Update(ctx context.Context, a *Admission) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE admission SET resource_id=$2, admitted_at=$3, discharged_at=$4, bed_price=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ResourceID, a.AdmittedAt, a.DischargedAt, a.BedPrice,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("admission", a.ID.String())
	}
	return db.MapConstraintError(err)
}

func (r *admissionRepoPG) List(ctx context.Context, f AdmissionFilter, limit, offset int) ([]*Admission, int, error) {
	var w whereBuilder
	if f.ResourceID != nil {
		w.add("resource_id = $%d", *f.ResourceID)
	}
	if f.VisitID != nil {
		w.add("visit_id = $%d", *f.VisitID)
	}
	if f.Open != nil {
		w.add("(discharged_at IS NULL) = $%d", *f.Open)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admission`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := w.page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+admissionCols+` FROM admission`+w.sql()+` ORDER BY admitted_at DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Admission
	for rows.Next() {
		a, err := r.scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *admissionRepoPG) ResourceUsage(ctx context.Context, resourceID uuid.UUID) (registry.Usage, error) {
	var total, open int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE discharged_at IS NULL)
		FROM admission WHERE resource_id = $1`, resourceID,
	).Scan(&total, &open)
	if err != nil {
		return registry.Usage{}, err
	}
	u := registry.Usage{Referenced: total > 0, Holding: open > 0}
	switch {
	case u.Holding:
		u.By = "an open admission"
	case u.Referenced:
		u.By = "admission history"
	}
	return u, nil
}
