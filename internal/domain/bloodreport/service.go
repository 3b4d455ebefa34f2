package bloodreport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/domain/patient"
	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/db"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
	"github.com/bloodlab/bloodlab/pkg/pagination"
	"github.com/bloodlab/bloodlab/pkg/phone"
)

// PatientLookup resolves the patient a report belongs to. Inactive patients
// resolve too.
type PatientLookup interface {
	FindByID(ctx context.Context, id int64) (*patient.Patient, error)
}

// Recorder receives report counters. *metrics.Metrics satisfies it.
type Recorder interface {
	ReportCreated(tests int)
	ReportUpdated(tests int)
	ReportsDeleted(n int)
	PDFRendered(d time.Duration)
}

// Renderer writes a printable document for a report.
type Renderer interface {
	Render(w io.Writer, r *Report) error
}

type Service struct {
	reports  ReportRepository
	patients PatientLookup
	tx       db.TxRunner
	metrics  Recorder
	logger   zerolog.Logger

	now       func() time.Time
	newNumber func(time.Time) string
}

func NewService(reports ReportRepository, patients PatientLookup, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		reports:   reports,
		patients:  patients,
		tx:        tx,
		logger:    logger.With().Str("component", "bloodreport").Logger(),
		now:       time.Now,
		newNumber: NewReportNumber,
	}
}

func (s *Service) SetMetrics(m Recorder) {
	s.metrics = m
}

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewReportNumber returns "BR", the Unix time in milliseconds and five
// random upper-case base36 characters.
func NewReportNumber(t time.Time) string {
	id := uuid.New()
	var suffix [5]byte
	for i := range suffix {
		suffix[i] = base36[int(id[i])%len(base36)]
	}
	return "BR" + strconv.FormatInt(t.UnixMilli(), 10) + string(suffix[:])
}

func (s *Service) CreateReport(ctx context.Context, req CreateRequest) (*Report, error) {
	details := map[string]string{}
	if req.PatientID <= 0 {
		details["patientId"] = "valid patient ID is required"
	}
	if len(req.Tests) == 0 {
		details["tests"] = "at least one test result is required"
	}
	status := StatusCompleted
	if req.Status != nil {
		status = strings.ToLower(strings.TrimSpace(*req.Status))
		if !validStatus(status) {
			details["status"] = "status must be pending, completed, or cancelled"
		}
	}
	tests := buildTests(req.Tests, details)
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details)
	}

	if _, err := s.patients.FindByID(ctx, req.PatientID); err != nil {
		return nil, err
	}

	rep := &Report{
		PatientID:   req.PatientID,
		ReportDate:  dateonly.Of(s.now()),
		DoctorNotes: optional(req.DoctorNotes),
		Status:      status,
		Active:      true,
	}
	if req.ReportDate != nil && !req.ReportDate.IsZero() {
		rep.ReportDate = *req.ReportDate
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rep.ReportNumber = s.newNumber(s.now())
		if err := s.reports.Create(ctx, rep); err != nil {
			return err
		}
		return s.reports.InsertTests(ctx, rep.ID, tests)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ReportCreated(len(tests))
	}
	s.logger.Info().Int64("report_id", rep.ID).Str("report_number", rep.ReportNumber).
		Int("tests", len(tests)).Msg("blood report created")

	return s.GetReport(ctx, rep.ID)
}

// GetReport returns the report with its patient and tests whether or not it
// is active.
func (s *Service) GetReport(ctx context.Context, id int64) (*Report, error) {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tests, err := s.reports.ListTests(ctx, id)
	if err != nil {
		return nil, err
	}
	rep.Tests = tests
	return rep, nil
}

func (s *Service) ListReports(ctx context.Context, f ListFilter, page pagination.Params) ([]*Report, pagination.Meta, error) {
	f.PatientName = strings.TrimSpace(f.PatientName)
	if key := phone.SearchKey(f.PatientPhone); key != "" {
		f.PatientPhone = key
	} else {
		f.PatientPhone = strings.TrimSpace(f.PatientPhone)
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, pagination.Meta{}, apperr.Validation("validation failed",
			map[string]string{"status": "status must be pending, completed, or cancelled"})
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(f.StartDate.Time) {
		return nil, pagination.Meta{}, apperr.Validation("validation failed",
			map[string]string{"endDate": "end date must not be before start date"})
	}

	items, total, err := s.reports.List(ctx, f, page.Limit, page.Offset())
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	if items == nil {
		items = []*Report{}
	}
	return items, pagination.NewMeta(page, total), nil
}

// UpdateReport patches the header and, when req.Tests is set, replaces every
// test in the same transaction. Inactive reports can be updated.
func (s *Service) UpdateReport(ctx context.Context, id int64, req UpdateRequest) (*Report, error) {
	details := map[string]string{}
	var status string
	if req.Status != nil {
		status = strings.ToLower(strings.TrimSpace(*req.Status))
		if !validStatus(status) {
			details["status"] = "status must be pending, completed, or cancelled"
		}
	}
	var tests []Test
	if req.Tests != nil {
		tests = buildTests(*req.Tests, details)
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details)
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rep, err := s.reports.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.ReportDate != nil && !req.ReportDate.IsZero() {
			rep.ReportDate = *req.ReportDate
		}
		if req.DoctorNotes != nil {
			rep.DoctorNotes = optional(req.DoctorNotes)
		}
		if req.Status != nil {
			rep.Status = status
		}
		if err := s.reports.Update(ctx, rep); err != nil {
			return err
		}

		if req.Tests == nil {
			return nil
		}
		if err := s.reports.DeleteTests(ctx, id); err != nil {
			return err
		}
		return s.reports.InsertTests(ctx, id, tests)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ReportUpdated(len(tests))
	}
	s.logger.Info().Int64("report_id", id).Bool("tests_replaced", req.Tests != nil).Msg("blood report updated")

	return s.GetReport(ctx, id)
}

// DeleteReport marks the report inactive. Deleting an inactive report succeeds.
func (s *Service) DeleteReport(ctx context.Context, id int64) error {
	if err := s.reports.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ReportsDeleted(1)
	}
	s.logger.Info().Int64("report_id", id).Msg("blood report deactivated")
	return nil
}

// BulkDelete deactivates each id on its own. Every id is attempted; when any
// is missing the result still lists what was deleted and the error names the
// missing ids. Deletes that went through are kept.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (*BulkDeleteResult, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("validation failed",
			map[string]string{"reportIds": "report IDs array is required"})
	}

	res := &BulkDeleteResult{Deleted: []int64{}}
	for _, id := range ids {
		err := s.reports.Deactivate(ctx, id)
		switch {
		case err == nil:
			res.Deleted = append(res.Deleted, id)
		case apperr.IsNotFound(err):
			res.NotFound = append(res.NotFound, id)
		default:
			return res, err
		}
	}

	if s.metrics != nil {
		s.metrics.ReportsDeleted(len(res.Deleted))
	}
	s.logger.Info().Int("deleted", len(res.Deleted)).Int("not_found", len(res.NotFound)).Msg("bulk delete")

	if len(res.NotFound) > 0 {
		return res, &apperr.Error{
			Err:        apperr.ErrNotFound,
			Message:    "one or more blood reports were not found",
			Code:       apperr.CodeNotFound,
			HTTPStatus: http.StatusNotFound,
			Details: map[string]string{
				"notFound": joinIDs(res.NotFound),
				"deleted":  joinIDs(res.Deleted),
			},
		}
	}
	return res, nil
}

// ReportsByDateRange returns active reports dated within [start, end], both
// ends included, newest first.
func (s *Service) ReportsByDateRange(ctx context.Context, start, end dateonly.Date) ([]*Report, error) {
	if end.Before(start.Time) {
		return nil, apperr.Validation("validation failed",
			map[string]string{"endDate": "end date must not be before start date"})
	}
	items, err := s.reports.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Report{}
	}
	return items, nil
}

func (s *Service) Stats(ctx context.Context, period string) (*PeriodStats, error) {
	rng := dateonly.Resolve(period, s.now())
	items, err := s.ReportsByDateRange(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	return &PeriodStats{Range: rng, TotalReports: len(items), Reports: items}, nil
}

// ExportPDF renders report id into w and returns the report that was drawn.
func (s *Service) ExportPDF(ctx context.Context, id int64, pdf Renderer, w io.Writer) (*Report, error) {
	rep, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	started := s.now()
	if err := pdf.Render(w, rep); err != nil {
		return nil, apperr.Wrap(err, "failed to generate PDF")
	}
	if s.metrics != nil {
		s.metrics.PDFRendered(s.now().Sub(started))
	}
	return rep, nil
}

// Column widths of blood_report_tests, in characters.
const (
	maxCategoryLen    = 100
	maxTestNameLen    = 100
	maxResultValueLen = 100
	maxUnitLen        = 50
	maxNormalRangeLen = 100
)

// buildTests validates inputs, recording problems in details under
// "tests[i].field", and returns the rows to insert. A blank category
// becomes DefaultCategory.
func buildTests(in []TestInput, details map[string]string) []Test {
	tests := make([]Test, 0, len(in))
	for i, t := range in {
		key := fmt.Sprintf("tests[%d]", i)
		tooLong := func(field string, v *string, limit int) {
			if v != nil && utf8.RuneCountInString(*v) > limit {
				details[key+"."+field] = fmt.Sprintf("%s must be at most %d characters", field, limit)
			}
		}

		category := DefaultCategory
		if c := optional(t.Category); c != nil {
			category = *c
		}
		tooLong("category", &category, maxCategoryLen)

		name := strings.TrimSpace(t.TestName)
		if name == "" {
			details[key+".testName"] = "test name is required"
		}
		tooLong("testName", &name, maxTestNameLen)

		value := strings.TrimSpace(t.ResultValue)
		if value == "" {
			details[key+".resultValue"] = "test result value is required"
		}
		tooLong("resultValue", &value, maxResultValueLen)

		unit, normalRange := optional(t.Unit), optional(t.NormalRange)
		tooLong("unit", unit, maxUnitLen)
		tooLong("normalRange", normalRange, maxNormalRangeLen)

		tests = append(tests, Test{
			Category:       category,
			TestName:       name,
			ResultValue:    value,
			Unit:           unit,
			NormalRange:    normalRange,
			ReferenceValue: t.ReferenceValue,
			IsAbnormal:     t.IsAbnormal,
			Notes:          optional(t.Notes),
		})
	}
	return tests
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
