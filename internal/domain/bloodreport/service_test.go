package bloodreport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/domain/patient"
	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
	"github.com/bloodlab/bloodlab/pkg/pagination"
)

// -- Mock Repository --

type mockReportRepo struct {
	reports  map[int64]*Report
	tests    map[int64][]Test
	patients map[int64]*patient.Patient
	nextID   int64
	nextTest int64

	failInsertTests bool
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{
		reports:  make(map[int64]*Report),
		tests:    make(map[int64][]Test),
		patients: make(map[int64]*patient.Patient),
	}
}

type repoSnapshot struct {
	reports map[int64]Report
	tests   map[int64][]Test
	nextID  int64
}

func (m *mockReportRepo) snapshot() repoSnapshot {
	s := repoSnapshot{reports: map[int64]Report{}, tests: map[int64][]Test{}, nextID: m.nextID}
	for id, r := range m.reports {
		s.reports[id] = *r
	}
	for id, t := range m.tests {
		s.tests[id] = append([]Test(nil), t...)
	}
	return s
}

func (m *mockReportRepo) restore(s repoSnapshot) {
	m.reports = make(map[int64]*Report)
	for id, r := range s.reports {
		cp := r
		m.reports[id] = &cp
	}
	m.tests = s.tests
	m.nextID = s.nextID
}

func (m *mockReportRepo) summary(id int64, full bool) *PatientSummary {
	p := m.patients[id]
	if p == nil {
		return nil
	}
	age := p.Age
	ps := &PatientSummary{ID: p.ID, Name: p.Name, Age: &age, Gender: p.Gender, Phone: p.Phone}
	if full {
		ps.Email, ps.Address = p.Email, p.Address
	}
	return ps
}

func (m *mockReportRepo) Create(_ context.Context, r *Report) error {
	if _, ok := m.patients[r.PatientID]; !ok {
		return apperr.NotFound("patient", r.PatientID)
	}
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, id int64) (*Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("blood report", id)
	}
	cp := *r
	cp.Patient = m.summary(r.PatientID, true)
	return &cp, nil
}

func (m *mockReportRepo) Update(_ context.Context, r *Report) error {
	if _, ok := m.reports[r.ID]; !ok {
		return apperr.NotFound("blood report", r.ID)
	}
	cp := *r
	cp.Patient, cp.Tests = nil, nil
	m.reports[r.ID] = &cp
	return nil
}

func (m *mockReportRepo) Deactivate(_ context.Context, id int64) error {
	r, ok := m.reports[id]
	if !ok {
		return apperr.NotFound("blood report", id)
	}
	r.Active = false
	return nil
}

func (m *mockReportRepo) sorted(keep func(*Report) bool) []*Report {
	var out []*Report
	for _, r := range m.reports {
		if r.Active && keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReportDate.Equal(out[j].ReportDate.Time) {
			return out[i].ReportDate.After(out[j].ReportDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *mockReportRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Report, int, error) {
	matched := m.sorted(func(r *Report) bool {
		p := m.patients[r.PatientID]
		if f.PatientName != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.PatientName)) {
			return false
		}
		if f.PatientPhone != "" && !strings.Contains(p.Phone, f.PatientPhone) {
			return false
		}
		if f.StartDate != nil && r.ReportDate.Before(f.StartDate.Time) {
			return false
		}
		if f.EndDate != nil && r.ReportDate.After(f.EndDate.Time) {
			return false
		}
		return f.Status == "" || r.Status == f.Status
	})
	for _, r := range matched {
		r.Patient = m.summary(r.PatientID, false)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *mockReportRepo) ListByDateRange(_ context.Context, start, end dateonly.Date) ([]*Report, error) {
	items := m.sorted(func(r *Report) bool {
		return !r.ReportDate.Before(start.Time) && !r.ReportDate.After(end.Time)
	})
	for _, r := range items {
		r.Patient = &PatientSummary{Name: m.patients[r.PatientID].Name}
	}
	return items, nil
}

func (m *mockReportRepo) InsertTests(_ context.Context, reportID int64, tests []Test) error {
	for i, t := range tests {
		if m.failInsertTests && i == len(tests)-1 {
			return errors.New("insert blood report tests: connection reset")
		}
		m.nextTest++
		t.ID = m.nextTest
		t.ReportID = reportID
		m.tests[reportID] = append(m.tests[reportID], t)
	}
	return nil
}

func (m *mockReportRepo) DeleteTests(_ context.Context, reportID int64) error {
	delete(m.tests, reportID)
	return nil
}

func (m *mockReportRepo) ListTests(_ context.Context, reportID int64) ([]Test, error) {
	out := append([]Test{}, m.tests[reportID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TestName != out[j].TestName {
			return out[i].TestName < out[j].TestName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// mockTx rolls the repository back when fn fails.
type mockTx struct {
	repo  *mockReportRepo
	calls int
}

func (t *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	snap := t.repo.snapshot()
	if err := fn(ctx); err != nil {
		t.repo.restore(snap)
		return err
	}
	return nil
}

type patientLookup struct{ repo *mockReportRepo }

func (l patientLookup) FindByID(_ context.Context, id int64) (*patient.Patient, error) {
	p, ok := l.repo.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	return p, nil
}

type countingRecorder struct {
	created, updated, deleted, pdfs int
}

func (r *countingRecorder) ReportCreated(int)           { r.created++ }
func (r *countingRecorder) ReportUpdated(int)           { r.updated++ }
func (r *countingRecorder) ReportsDeleted(n int)        { r.deleted += n }
func (r *countingRecorder) PDFRendered(_ time.Duration) { r.pdfs++ }

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestService() (*Service, *mockReportRepo, *mockTx) {
	repo := newMockReportRepo()
	repo.patients[7] = &patient.Patient{ID: 7, Name: "Asha Rao", Age: 34, Gender: "female", Phone: "+919876543210", Active: true}
	repo.patients[8] = &patient.Patient{ID: 8, Name: "Ravi Kumar", Age: 52, Gender: "male", Phone: "+919123456789", Active: false}
	tx := &mockTx{repo: repo}
	svc := NewService(repo, patientLookup{repo}, tx, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	n := 0
	svc.newNumber = func(t time.Time) string {
		n++
		return fmt.Sprintf("BR%d%05d", t.UnixMilli(), n)
	}
	return svc, repo, tx
}

func ptr[T any](v T) *T { return &v }

func day(s string) dateonly.Date {
	d, err := dateonly.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hemoglobin() TestInput {
	return TestInput{
		Category: ptr("HEMATOLOGY"), TestName: "Hemoglobin", ResultValue: "12.5",
		Unit: ptr("g/dL"), NormalRange: ptr("12.0-15.5"),
	}
}

func createOn(t *testing.T, svc *Service, patientID int64, date string, tests ...TestInput) *Report {
	t.Helper()
	if len(tests) == 0 {
		tests = []TestInput{hemoglobin()}
	}
	d := day(date)
	rep, err := svc.CreateReport(context.Background(), CreateRequest{PatientID: patientID, ReportDate: &d, Tests: tests})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return rep
}

// -- Tests --

func TestCreateReport_Scenario(t *testing.T) {
	svc, _, tx := newTestService()
	rep, err := svc.CreateReport(context.Background(), CreateRequest{PatientID: 7, Tests: []TestInput{hemoglobin()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.calls != 1 {
		t.Errorf("expected create to run in one transaction, got %d", tx.calls)
	}
	if rep.ID == 0 || rep.ReportNumber == "" {
		t.Errorf("expected server-assigned id and number, got %+v", rep)
	}
	if rep.Status != StatusCompleted {
		t.Errorf("expected default status completed, got %s", rep.Status)
	}
	if !rep.Active {
		t.Error("expected new report to be active")
	}
	if rep.ReportDate.String() != "2024-03-15" {
		t.Errorf("expected report date to default to today, got %s", rep.ReportDate)
	}
	if rep.Patient == nil || rep.Patient.Name != "Asha Rao" {
		t.Errorf("expected patient projection, got %+v", rep.Patient)
	}
	if len(rep.Tests) != 1 {
		t.Fatalf("expected one test, got %d", len(rep.Tests))
	}
	got := rep.Tests[0]
	if got.Category != "HEMATOLOGY" || got.TestName != "Hemoglobin" || got.ResultValue != "12.5" ||
		*got.Unit != "g/dL" || *got.NormalRange != "12.0-15.5" || got.IsAbnormal {
		t.Errorf("unexpected test: %+v", got)
	}

	second, _ := svc.CreateReport(context.Background(), CreateRequest{PatientID: 7, Tests: []TestInput{hemoglobin()}})
	if second.ReportNumber == rep.ReportNumber {
		t.Error("expected unique report numbers")
	}
}

func TestCreateReport_RoundTripSortedByTestName(t *testing.T) {
	svc, _, _ := newTestService()
	in := []TestInput{
		{Category: ptr("BIOCHEMISTRY"), TestName: "Urea", ResultValue: "30", Unit: ptr("mg/dL")},
		{TestName: "Albumin", ResultValue: "4.2", IsAbnormal: true},
		{Category: ptr("HEMATOLOGY"), TestName: "Hemoglobin", ResultValue: "11.0"},
	}
	rep := createOn(t, svc, 7, "2024-03-01", in...)

	fetched, err := svc.GetReport(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantNames := []string{"Albumin", "Hemoglobin", "Urea"}
	if len(fetched.Tests) != len(wantNames) {
		t.Fatalf("expected %d tests, got %d", len(wantNames), len(fetched.Tests))
	}
	for i, name := range wantNames {
		if fetched.Tests[i].TestName != name {
			t.Errorf("position %d: expected %s, got %s", i, name, fetched.Tests[i].TestName)
		}
	}
	if fetched.Tests[0].Category != DefaultCategory || !fetched.Tests[0].IsAbnormal {
		t.Errorf("expected defaulted category and abnormal flag, got %+v", fetched.Tests[0])
	}
}

func TestCreateReport_InactivePatientAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	rep := createOn(t, svc, 8, "2024-03-01")
	if rep.PatientID != 8 {
		t.Errorf("expected report for inactive patient 8, got %d", rep.PatientID)
	}
}

func TestCreateReport_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"no tests", CreateRequest{PatientID: 7}, "tests"},
		{"no patient", CreateRequest{Tests: []TestInput{hemoglobin()}}, "patientId"},
		{"missing name", CreateRequest{PatientID: 7, Tests: []TestInput{{ResultValue: "1"}}}, "tests[0].testName"},
		{"missing value", CreateRequest{PatientID: 7, Tests: []TestInput{hemoglobin(), {TestName: "WBC", ResultValue: " "}}}, "tests[1].resultValue"},
		{"bad status", CreateRequest{PatientID: 7, Status: ptr("archived"), Tests: []TestInput{hemoglobin()}}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateReport(context.Background(), tt.req)
			if !apperr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if apperr.From(err).Details[tt.field] == "" {
				t.Errorf("expected detail for %s, got %v", tt.field, apperr.From(err).Details)
			}
		})
	}
}

func TestBuildTests_FieldLengths(t *testing.T) {
	long := func(n int) string { return strings.Repeat("x", n) }
	tests := []struct {
		name  string
		in    TestInput
		field string
	}{
		{"test name", TestInput{TestName: long(150), ResultValue: "1"}, "tests[0].testName"},
		{"result value", TestInput{TestName: "Hb", ResultValue: long(150)}, "tests[0].resultValue"},
		{"unit", TestInput{TestName: "Hb", ResultValue: "1", Unit: ptr(long(80))}, "tests[0].unit"},
		{"normal range", TestInput{TestName: "Hb", ResultValue: "1", NormalRange: ptr(long(101))}, "tests[0].normalRange"},
		{"category", TestInput{Category: ptr(long(101)), TestName: "Hb", ResultValue: "1"}, "tests[0].category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := map[string]string{}
			buildTests([]TestInput{tt.in}, details)
			if details[tt.field] == "" {
				t.Errorf("expected detail for %s, got %v", tt.field, details)
			}
			if len(details) != 1 {
				t.Errorf("expected exactly one detail, got %v", details)
			}
		})
	}
}

func TestBuildTests_LimitsCountRunes(t *testing.T) {
	details := map[string]string{}
	got := buildTests([]TestInput{{
		TestName:    strings.Repeat("é", maxTestNameLen),
		ResultValue: "1",
		Unit:        ptr(strings.Repeat("µ", maxUnitLen)),
	}}, details)
	if len(details) != 0 {
		t.Fatalf("expected values at the limit to pass, got %v", details)
	}
	if len(got) != 1 {
		t.Fatalf("expected one test, got %d", len(got))
	}
}

func TestCreateReport_OversizeFieldsRejected(t *testing.T) {
	svc, repo, _ := newTestService()
	_, err := svc.CreateReport(context.Background(), CreateRequest{
		PatientID: 7,
		Tests: []TestInput{
			hemoglobin(),
			{TestName: strings.Repeat("T", 150), ResultValue: strings.Repeat("9", 150), Unit: ptr(strings.Repeat("u", 80))},
		},
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := apperr.From(err).Details
	for _, f := range []string{"tests[1].testName", "tests[1].resultValue", "tests[1].unit"} {
		if details[f] == "" {
			t.Errorf("expected detail for %s, got %v", f, details)
		}
	}
	if len(repo.reports) != 0 {
		t.Errorf("expected nothing persisted, got %d reports", len(repo.reports))
	}
}

func TestUpdateReport_OversizeFieldsRejected(t *testing.T) {
	svc, _, _ := newTestService()
	rep := createOn(t, svc, 7, "2024-03-01")

	tests := []TestInput{{TestName: "Hb", ResultValue: "1", NormalRange: ptr(strings.Repeat("r", 120))}}
	_, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{Tests: &tests})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if apperr.From(err).Details["tests[0].normalRange"] == "" {
		t.Errorf("expected normalRange detail, got %v", apperr.From(err).Details)
	}
}

func TestCreateReport_UnknownPatient(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateReport(context.Background(), CreateRequest{PatientID: 99, Tests: []TestInput{hemoglobin()}})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateReport_FailedTestInsertRollsBack(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.failInsertTests = true

	_, err := svc.CreateReport(context.Background(), CreateRequest{
		PatientID: 7,
		Tests:     []TestInput{hemoglobin(), {TestName: "WBC", ResultValue: "7000"}},
	})
	if err == nil {
		t.Fatal("expected error from failing test insert")
	}
	if len(repo.reports) != 0 || len(repo.tests) != 0 {
		t.Errorf("expected nothing persisted, got %d reports and %d test sets", len(repo.reports), len(repo.tests))
	}
}

func TestCreateReport_StatusSupplied(t *testing.T) {
	svc, _, _ := newTestService()
	rep, err := svc.CreateReport(context.Background(), CreateRequest{PatientID: 7, Status: ptr("Pending"), Tests: []TestInput{hemoglobin()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Status != StatusPending {
		t.Errorf("expected pending, got %s", rep.Status)
	}
}

func TestUpdateReport_ReplacesTests(t *testing.T) {
	svc, _, _ := newTestService()
	rep := createOn(t, svc, 7, "2024-03-01",
		TestInput{TestName: "A", ResultValue: "1"},
		TestInput{TestName: "B", ResultValue: "2"})

	updated, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{
		Tests: &[]TestInput{{TestName: "C", ResultValue: "3"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Tests) != 1 || updated.Tests[0].TestName != "C" {
		t.Errorf("expected exactly [C], got %+v", updated.Tests)
	}
	if updated.ReportDate.String() != "2024-03-01" || updated.Status != StatusCompleted {
		t.Errorf("expected scalar fields untouched, got %+v", updated)
	}
}

func TestUpdateReport_ScalarsOnlyKeepsTests(t *testing.T) {
	svc, _, _ := newTestService()
	rep := createOn(t, svc, 7, "2024-03-01")
	d := day("2024-03-05")

	updated, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{
		ReportDate: &d, DoctorNotes: ptr("Repeat in 2 weeks"), Status: ptr("cancelled"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ReportDate.String() != "2024-03-05" || updated.Status != StatusCancelled {
		t.Errorf("unexpected scalars: %+v", updated)
	}
	if updated.DoctorNotes == nil || *updated.DoctorNotes != "Repeat in 2 weeks" {
		t.Errorf("expected doctor notes, got %v", updated.DoctorNotes)
	}
	if len(updated.Tests) != 1 {
		t.Errorf("expected tests untouched, got %d", len(updated.Tests))
	}
}

func TestUpdateReport_EmptyTestsClearsSet(t *testing.T) {
	svc, _, _ := newTestService()
	rep := createOn(t, svc, 7, "2024-03-01")

	updated, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{Tests: &[]TestInput{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Tests) != 0 {
		t.Errorf("expected no tests, got %d", len(updated.Tests))
	}
}

func TestUpdateReport_FailedReplaceRollsBack(t *testing.T) {
	svc, repo, _ := newTestService()
	rep := createOn(t, svc, 7, "2024-03-01",
		TestInput{TestName: "A", ResultValue: "1"},
		TestInput{TestName: "B", ResultValue: "2"})
	repo.failInsertTests = true

	_, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{
		Status: ptr("pending"),
		Tests:  &[]TestInput{{TestName: "C", ResultValue: "3"}, {TestName: "D", ResultValue: "4"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	repo.failInsertTests = false
	got, _ := svc.GetReport(context.Background(), rep.ID)
	if len(got.Tests) != 2 || got.Tests[0].TestName != "A" || got.Status != StatusCompleted {
		t.Errorf("expected original report after rollback, got status %s tests %+v", got.Status, got.Tests)
	}
}

func TestUpdateReport_InactiveAndMissing(t *testing.T) {
	svc, _, _ := newTestService()
	rep := createOn(t, svc, 7, "2024-03-01")
	_ = svc.DeleteReport(context.Background(), rep.ID)

	if _, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{Status: ptr("pending")}); err != nil {
		t.Errorf("expected update of inactive report to succeed, got %v", err)
	}
	if _, err := svc.UpdateReport(context.Background(), 404, UpdateRequest{Status: ptr("pending")}); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{Tests: &[]TestInput{{TestName: "X"}}}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDeleteReport_HiddenFromListNotGet(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	rep := createOn(t, svc, 7, "2024-03-01")

	if err := svc.DeleteReport(ctx, rep.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeleteReport(ctx, rep.ID); err != nil {
		t.Errorf("expected second delete to succeed, got %v", err)
	}

	items, meta, _ := svc.ListReports(ctx, ListFilter{}, pagination.New(1, 10))
	if len(items) != 0 || meta.TotalItems != 0 {
		t.Errorf("expected deleted report hidden from list, got %d", len(items))
	}

	got, err := svc.GetReport(ctx, rep.ID)
	if err != nil {
		t.Fatalf("expected get to find deleted report: %v", err)
	}
	if got.Active {
		t.Error("expected report to be inactive")
	}

	if err := svc.DeleteReport(ctx, 404); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListReports_Pagination(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		createOn(t, svc, 7, fmt.Sprintf("2024-03-%02d", i))
	}

	tests := []struct {
		page, limit int
		wantRows    int
		wantPages   int
	}{
		{1, 2, 2, 3},
		{3, 2, 1, 3},
		{4, 2, 0, 3},
		{1, 5, 5, 1},
		{2, 10, 0, 1},
	}
	for _, tt := range tests {
		items, meta, err := svc.ListReports(ctx, ListFilter{}, pagination.New(tt.page, tt.limit))
		if err != nil {
			t.Fatalf("page %d: %v", tt.page, err)
		}
		if len(items) != tt.wantRows || meta.TotalPages != tt.wantPages || meta.TotalItems != 5 {
			t.Errorf("page %d limit %d: got %d rows, meta %+v", tt.page, tt.limit, len(items), meta)
		}
		if items == nil {
			t.Errorf("page %d: expected empty slice, got nil", tt.page)
		}
	}

	items, _, _ := svc.ListReports(ctx, ListFilter{}, pagination.New(1, 2))
	if items[0].ReportDate.String() != "2024-03-05" {
		t.Errorf("expected newest report first, got %s", items[0].ReportDate)
	}
}

func TestListReports_Filters(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	createOn(t, svc, 7, "2024-03-01")
	createOn(t, svc, 8, "2024-03-10")
	pending, _ := svc.CreateReport(ctx, CreateRequest{PatientID: 8, Status: ptr("pending"), ReportDate: ptr(day("2024-03-20")), Tests: []TestInput{hemoglobin()}})

	items, _, _ := svc.ListReports(ctx, ListFilter{PatientName: "ravi"}, pagination.New(1, 10))
	if len(items) != 2 {
		t.Errorf("expected 2 reports for Ravi, got %d", len(items))
	}
	if items[0].Patient == nil || items[0].Patient.Phone == "" {
		t.Errorf("expected list projection with phone, got %+v", items[0].Patient)
	}

	items, _, _ = svc.ListReports(ctx, ListFilter{PatientPhone: "98765 43"}, pagination.New(1, 10))
	if len(items) != 1 || items[0].PatientID != 7 {
		t.Errorf("expected phone filter to match patient 7, got %d items", len(items))
	}

	items, _, _ = svc.ListReports(ctx, ListFilter{Status: StatusPending}, pagination.New(1, 10))
	if len(items) != 1 || items[0].ID != pending.ID {
		t.Errorf("expected only the pending report, got %d", len(items))
	}

	start, end := day("2024-03-01"), day("2024-03-10")
	items, _, _ = svc.ListReports(ctx, ListFilter{StartDate: &start, EndDate: &end}, pagination.New(1, 10))
	if len(items) != 2 {
		t.Errorf("expected inclusive date filter to return 2, got %d", len(items))
	}

	if _, _, err := svc.ListReports(ctx, ListFilter{Status: "x"}, pagination.New(1, 10)); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, _, err := svc.ListReports(ctx, ListFilter{StartDate: &end, EndDate: &start}, pagination.New(1, 10)); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for reversed range, got %v", err)
	}
}

func TestReportsByDateRange_Inclusive(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	createOn(t, svc, 7, "2024-02-29")
	first := createOn(t, svc, 7, "2024-03-01")
	createOn(t, svc, 7, "2024-03-05")
	last := createOn(t, svc, 8, "2024-03-10")
	createOn(t, svc, 7, "2024-03-11")

	items, err := svc.ReportsByDateRange(ctx, day("2024-03-01"), day("2024-03-10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(items))
	}
	if items[0].ID != last.ID || items[2].ID != first.ID {
		t.Errorf("expected both boundary reports newest first, got %d..%d", items[0].ID, items[2].ID)
	}
	if items[0].Patient == nil || items[0].Patient.Name != "Ravi Kumar" || items[0].Patient.Phone != "" {
		t.Errorf("expected name-only projection, got %+v", items[0].Patient)
	}

	if _, err := svc.ReportsByDateRange(ctx, day("2024-03-10"), day("2024-03-01")); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStats_Periods(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	createOn(t, svc, 7, "2024-01-02")
	createOn(t, svc, 7, "2024-03-01")
	createOn(t, svc, 7, "2024-03-10")
	createOn(t, svc, 7, "2024-03-15")

	tests := []struct {
		period    string
		want      int
		wantStart string
	}{
		{"today", 1, "2024-03-15"},
		{"week", 2, "2024-03-08"},
		{"month", 3, "2024-03-01"},
		{"year", 4, "2024-01-01"},
		{"", 3, "2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			stats, err := svc.Stats(ctx, tt.period)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stats.TotalReports != tt.want || len(stats.Reports) != tt.want {
				t.Errorf("expected %d reports, got %d", tt.want, stats.TotalReports)
			}
			if stats.Start.String() != tt.wantStart || stats.End.String() != "2024-03-15" {
				t.Errorf("unexpected range %s..%s", stats.Start, stats.End)
			}
		})
	}
}

func TestBulkDelete(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := createOn(t, svc, 7, "2024-03-01")
	b := createOn(t, svc, 7, "2024-03-02")
	rec := &countingRecorder{}
	svc.SetMetrics(rec)

	res, err := svc.BulkDelete(ctx, []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Deleted) != 2 || rec.deleted != 2 {
		t.Errorf("expected 2 deletions, got %+v (recorded %d)", res, rec.deleted)
	}

	if _, err := svc.BulkDelete(ctx, nil); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for empty list, got %v", err)
	}
}

func TestBulkDelete_PartialFailureKeepsCommitted(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	a := createOn(t, svc, 7, "2024-03-01")
	b := createOn(t, svc, 7, "2024-03-02")

	res, err := svc.BulkDelete(ctx, []int64{a.ID, 999, b.ID})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for the batch, got %v", err)
	}
	if len(res.Deleted) != 2 || len(res.NotFound) != 1 || res.NotFound[0] != 999 {
		t.Errorf("unexpected result %+v", res)
	}
	if apperr.From(err).Details["notFound"] != "999" {
		t.Errorf("expected missing ids in details, got %v", apperr.From(err).Details)
	}
	if repo.reports[a.ID].Active || repo.reports[b.ID].Active {
		t.Error("expected the resolvable reports to stay deleted")
	}
}

func TestMetricsRecorded(t *testing.T) {
	svc, _, _ := newTestService()
	rec := &countingRecorder{}
	svc.SetMetrics(rec)

	rep := createOn(t, svc, 7, "2024-03-01")
	_, _ = svc.UpdateReport(context.Background(), rep.ID, UpdateRequest{Status: ptr("pending")})
	_ = svc.DeleteReport(context.Background(), rep.ID)

	if rec.created != 1 || rec.updated != 1 || rec.deleted != 1 {
		t.Errorf("unexpected counters %+v", rec)
	}
}

func TestNewReportNumber(t *testing.T) {
	now := time.UnixMilli(1710498600000)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := NewReportNumber(now)
		if !strings.HasPrefix(n, "BR1710498600000") || len(n) != len("BR1710498600000")+5 {
			t.Fatalf("unexpected format %q", n)
		}
		for _, r := range n[len(n)-5:] {
			if !strings.ContainsRune(base36, r) {
				t.Fatalf("unexpected suffix character %q in %s", r, n)
			}
		}
		seen[n] = true
	}
	if len(seen) < 95 {
		t.Errorf("expected mostly distinct numbers, got %d of 100", len(seen))
	}
}
