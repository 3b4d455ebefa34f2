package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, name, age, gender, phone, email, address,
	emergency_contact, emergency_phone, medical_history, active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Email, &p.Address,
		&p.EmergencyContact, &p.EmergencyPhone, &p.MedicalHistory, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (name, age, gender, phone, email, address,
			emergency_contact, emergency_phone, medical_history, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address,
		p.EmergencyContact, p.EmergencyPhone, p.MedicalHistory, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_phone_key") {
		return apperr.Conflict("patient with this phone number already exists")
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE phone = $1`, phone))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient", phone)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by phone: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			name=$2, age=$3, gender=$4, phone=$5, email=$6, address=$7,
			emergency_contact=$8, emergency_phone=$9, medical_history=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address,
		p.EmergencyContact, p.EmergencyPhone, p.MedicalHistory,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("patient", p.ID)
	}
	if db.IsUniqueViolation(err, "patients_phone_key") {
		return apperr.Conflict("patient with this phone number already exists")
	}
	if err != nil {
		return fmt.Errorf("update patient %d: %w", p.ID, err)
	}
	return nil
}

func (r *patientRepoPG) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate patient %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE active = TRUE`
	var args []any
	idx := 1

	if f.Name != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+escapeLike(f.Name)+"%")
		idx++
	}
	if f.Phone != "" {
		where += fmt.Sprintf(" AND phone ILIKE $%d", idx)
		args = append(args, "%"+escapeLike(f.Phone)+"%")
		idx++
	}
	if f.Gender != "" {
		where += fmt.Sprintf(" AND gender = $%d", idx)
		args = append(args, f.Gender)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) Search(ctx context.Context, q string, limit int) ([]*Patient, error) {
	pattern := "%" + escapeLike(q) + "%"
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE active = TRUE AND (name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1)
		ORDER BY name ASC, id ASC
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// escapeLike makes % and _ in user input match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
