package nursing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const readingCols = `id, visit_id, patient_id, nurse_id, systolic, diastolic, pulse, temperature_f, spo2,
	recorded_at, updated_at`

func (r *repoPG) scanReading(row pgx.Row) (*VitalReading, error) {
	var v VitalReading
	err := row.Scan(&v.ID, &v.VisitID, &v.PatientID, &v.NurseID, &v.Systolic, &v.Diastolic, &v.Pulse,
		&v.TemperatureF, &v.SpO2, &v.RecordedAt, &v.UpdatedAt)
	return &v, err
}

func (r *repoPG) Create(ctx context.Context, v *VitalReading) error {
	v.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vital_reading (id, visit_id, patient_id, nurse_id, systolic, diastolic, pulse, temperature_f, spo2, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING updated_at`,
		v.ID, v.VisitID, v.PatientID, v.NurseID, v.Systolic, v.Diastolic, v.Pulse, v.TemperatureF, v.SpO2, v.RecordedAt,
	).Scan(&v.UpdatedAt)
	return db.MapConstraintError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*VitalReading, error) {
	v, err := r.scanReading(r.conn(ctx).QueryRow(ctx,
		`SELECT `+readingCols+` FROM vital_reading WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("vital reading", id.String())
	}
	return v, err
}

func (r *repoPG) Update(ctx context.Context, v *VitalReading) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE vital_reading SET nurse_id=$2, systolic=$3, diastolic=$4, pulse=$5, temperature_f=$6, spo2=$7,
			recorded_at=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.NurseID, v.Systolic, v.Diastolic, v.Pulse, v.TemperatureF, v.SpO2, v.RecordedAt,
	).Scan(&v.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("vital reading", v.ID.String())
	}
	return err
}

func (r *repoPG) ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*VitalReading, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM vital_reading WHERE visit_id = $1`, visitID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+readingCols+` FROM vital_reading WHERE visit_id = $1 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`,
		visitID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*VitalReading
	for rows.Next() {
		v, err := r.scanReading(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}
