package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repoPG) CountReports(ctx context.Context) (int, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM blood_reports WHERE active = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

func (r *repoPG) CountReportsSince(ctx context.Context, since dateonly.Date) (int, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM blood_reports WHERE active = TRUE AND report_date >= $1`, since.Time)
	if err != nil {
		return 0, fmt.Errorf("count reports since %s: %w", since, err)
	}
	return n, nil
}

func (r *repoPG) CountPatients(ctx context.Context) (int, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM patients WHERE active = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (r *repoPG) CountPatientsCreatedSince(ctx context.Context, since time.Time) (int, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM patients WHERE active = TRUE AND created_at >= $1`, since)
	if err != nil {
		return 0, fmt.Errorf("count new patients: %w", err)
	}
	return n, nil
}

func (r *repoPG) RecentReports(ctx context.Context, limit int) ([]RecentReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.report_number, r.report_date, r.status, r.created_at, p.name, p.phone
		FROM blood_reports r
		JOIN patients p ON p.id = r.patient_id
		WHERE r.active = TRUE
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent reports: %w", err)
	}
	defer rows.Close()

	items := []RecentReport{}
	for rows.Next() {
		var rr RecentReport
		var reportDate time.Time
		if err := rows.Scan(&rr.ID, &rr.ReportNumber, &reportDate, &rr.Status, &rr.CreatedAt,
			&rr.Patient.Name, &rr.Patient.Phone); err != nil {
			return nil, fmt.Errorf("scan recent report: %w", err)
		}
		rr.ReportDate = dateonly.Of(reportDate)
		items = append(items, rr)
	}
	return items, rows.Err()
}

func (r *repoPG) ReportsPerMonth(ctx context.Context, since dateonly.Date) ([]MonthCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DATE_TRUNC('month', report_date)::date AS month, COUNT(*)
		FROM blood_reports
		WHERE active = TRUE AND report_date >= $1
		GROUP BY month
		ORDER BY month ASC`, since.Time)
	if err != nil {
		return nil, fmt.Errorf("reports per month: %w", err)
	}
	return scanMonths(rows)
}

func (r *repoPG) PatientsPerMonth(ctx context.Context, since time.Time) ([]MonthCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DATE_TRUNC('month', created_at)::date AS month, COUNT(*)
		FROM patients
		WHERE active = TRUE AND created_at >= $1
		GROUP BY month
		ORDER BY month ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("patients per month: %w", err)
	}
	return scanMonths(rows)
}

func scanMonths(rows pgx.Rows) ([]MonthCount, error) {
	defer rows.Close()
	var out []MonthCount
	for rows.Next() {
		var month time.Time
		var mc MonthCount
		if err := rows.Scan(&month, &mc.Count); err != nil {
			return nil, fmt.Errorf("scan month count: %w", err)
		}
		mc.Month = month.Format(monthLayout)
		out = append(out, mc)
	}
	return out, rows.Err()
}

func (r *repoPG) GenderCounts(ctx context.Context) ([]GenderCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT gender, COUNT(*) FROM patients
		WHERE active = TRUE
		GROUP BY gender
		ORDER BY gender`)
	if err != nil {
		return nil, fmt.Errorf("gender counts: %w", err)
	}
	defer rows.Close()

	out := []GenderCount{}
	for rows.Next() {
		var gc GenderCount
		if err := rows.Scan(&gc.Gender, &gc.Count); err != nil {
			return nil, fmt.Errorf("scan gender count: %w", err)
		}
		out = append(out, gc)
	}
	return out, rows.Err()
}

func (r *repoPG) AgeHistogram(ctx context.Context) (map[int]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT age, COUNT(*) FROM patients WHERE active = TRUE GROUP BY age`)
	if err != nil {
		return nil, fmt.Errorf("age histogram: %w", err)
	}
	defer rows.Close()

	out := map[int]int{}
	for rows.Next() {
		var age, n int
		if err := rows.Scan(&age, &n); err != nil {
			return nil, fmt.Errorf("scan age count: %w", err)
		}
		out[age] = n
	}
	return out, rows.Err()
}

func (r *repoPG) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM blood_reports
		WHERE active = TRUE
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := []StatusCount{}
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *repoPG) TopTests(ctx context.Context, limit int) ([]TestCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT test_name, COUNT(*) AS n
		FROM blood_report_tests
		GROUP BY test_name
		ORDER BY n DESC, test_name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top tests: %w", err)
	}
	defer rows.Close()

	out := []TestCount{}
	for rows.Next() {
		var tc TestCount
		if err := rows.Scan(&tc.TestName, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan test count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
