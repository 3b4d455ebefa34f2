package bloodreport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/db"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

type reportRepoPG struct {
	pool *pgxpool.Pool
}

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reportCols = `r.id, r.report_number, r.patient_id, r.report_date, r.doctor_notes,
	r.status, r.active, r.created_at, r.updated_at`

func scanReport(row pgx.Row, extra ...any) (*Report, error) {
	var rep Report
	var reportDate time.Time
	dest := append([]any{&rep.ID, &rep.ReportNumber, &rep.PatientID, &reportDate, &rep.DoctorNotes,
		&rep.Status, &rep.Active, &rep.CreatedAt, &rep.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rep.ReportDate = dateonly.Of(reportDate)
	return &rep, nil
}

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_reports (report_number, patient_id, report_date, doctor_notes, status, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		rep.ReportNumber, rep.PatientID, rep.ReportDate.Time, rep.DoctorNotes, rep.Status, rep.Active,
	).Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt)
	if db.IsForeignKeyViolation(err, "blood_reports_patient_id_fkey") {
		return apperr.NotFound("patient", rep.PatientID)
	}
	if db.IsUniqueViolation(err, "blood_reports_report_number_key") {
		return apperr.Conflict("report number already in use, please retry")
	}
	if err != nil {
		return fmt.Errorf("insert blood report: %w", err)
	}
	return nil
}

func (r *reportRepoPG) GetByID(ctx context.Context, id int64) (*Report, error) {
	var ps PatientSummary
	var age int
	rep, err := scanReport(r.conn(ctx).QueryRow(ctx, `
		SELECT `+reportCols+`, p.id, p.name, p.age, p.gender, p.phone, p.email, p.address
		FROM blood_reports r
		JOIN patients p ON p.id = r.patient_id
		WHERE r.id = $1`, id),
		&ps.ID, &ps.Name, &age, &ps.Gender, &ps.Phone, &ps.Email, &ps.Address)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("blood report", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get blood report %d: %w", id, err)
	}
	ps.Age = &age
	rep.Patient = &ps
	return rep, nil
}

func (r *reportRepoPG) Update(ctx context.Context, rep *Report) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE blood_reports SET report_date=$2, doctor_notes=$3, status=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rep.ID, rep.ReportDate.Time, rep.DoctorNotes, rep.Status,
	).Scan(&rep.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("blood report", rep.ID)
	}
	if err != nil {
		return fmt.Errorf("update blood report %d: %w", rep.ID, err)
	}
	return nil
}

// Deactivate succeeds on reports that are already inactive.
func (r *reportRepoPG) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE blood_reports SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate blood report %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("blood report", id)
	}
	return nil
}

func (r *reportRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Report, int, error) {
	where := ` WHERE r.active = TRUE`
	var args []any
	idx := 1

	if f.PatientName != "" {
		where += fmt.Sprintf(" AND p.name ILIKE $%d", idx)
		args = append(args, "%"+escapeLike(f.PatientName)+"%")
		idx++
	}
	if f.PatientPhone != "" {
		where += fmt.Sprintf(" AND p.phone ILIKE $%d", idx)
		args = append(args, "%"+escapeLike(f.PatientPhone)+"%")
		idx++
	}
	if f.StartDate != nil {
		where += fmt.Sprintf(" AND r.report_date >= $%d", idx)
		args = append(args, f.StartDate.Time)
		idx++
	}
	if f.EndDate != nil {
		where += fmt.Sprintf(" AND r.report_date <= $%d", idx)
		args = append(args, f.EndDate.Time)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND r.status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	from := ` FROM blood_reports r JOIN patients p ON p.id = r.patient_id`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blood reports: %w", err)
	}

	query := `SELECT ` + reportCols + `, p.id, p.name, p.age, p.gender, p.phone` + from + where +
		fmt.Sprintf(" ORDER BY r.report_date DESC, r.id ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blood reports: %w", err)
	}
	defer rows.Close()

	var items []*Report
	for rows.Next() {
		var ps PatientSummary
		var age int
		rep, err := scanReport(rows, &ps.ID, &ps.Name, &age, &ps.Gender, &ps.Phone)
		if err != nil {
			return nil, 0, fmt.Errorf("scan blood report: %w", err)
		}
		ps.Age = &age
		rep.Patient = &ps
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

func (r *reportRepoPG) ListByDateRange(ctx context.Context, start, end dateonly.Date) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reportCols+`, p.name
		FROM blood_reports r
		JOIN patients p ON p.id = r.patient_id
		WHERE r.active = TRUE AND r.report_date BETWEEN $1 AND $2
		ORDER BY r.report_date DESC, r.id ASC`, start.Time, end.Time)
	if err != nil {
		return nil, fmt.Errorf("list blood reports by date: %w", err)
	}
	defer rows.Close()

	var items []*Report
	for rows.Next() {
		var ps PatientSummary
		rep, err := scanReport(rows, &ps.Name)
		if err != nil {
			return nil, fmt.Errorf("scan blood report: %w", err)
		}
		rep.Patient = &ps
		items = append(items, rep)
	}
	return items, rows.Err()
}

func (r *reportRepoPG) InsertTests(ctx context.Context, reportID int64, tests []Test) error {
	if len(tests) == 0 {
		return nil
	}

	const perRow = 9
	values := make([]string, 0, len(tests))
	args := make([]any, 0, len(tests)*perRow)
	for i, t := range tests {
		n := i * perRow
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9))
		args = append(args, reportID, t.Category, t.TestName, t.ResultValue,
			t.Unit, t.NormalRange, t.ReferenceValue, t.IsAbnormal, t.Notes)
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO blood_report_tests (report_id, category, test_name, result_value,
			unit, normal_range, reference_value, is_abnormal, notes)
		VALUES `+strings.Join(values, ","), args...)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("blood report", reportID)
	}
	if err != nil {
		return fmt.Errorf("insert blood report tests: %w", err)
	}
	return nil
}

func (r *reportRepoPG) DeleteTests(ctx context.Context, reportID int64) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM blood_report_tests WHERE report_id = $1`, reportID); err != nil {
		return fmt.Errorf("delete blood report tests: %w", err)
	}
	return nil
}

func (r *reportRepoPG) ListTests(ctx context.Context, reportID int64) ([]Test, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, report_id, category, test_name, result_value, unit, normal_range,
			reference_value, is_abnormal, notes, created_at
		FROM blood_report_tests
		WHERE report_id = $1
		ORDER BY test_name ASC, id ASC`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list blood report tests: %w", err)
	}
	defer rows.Close()

	tests := []Test{}
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.ReportID, &t.Category, &t.TestName, &t.ResultValue, &t.Unit,
			&t.NormalRange, &t.ReferenceValue, &t.IsAbnormal, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blood report test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
