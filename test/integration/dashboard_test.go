//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/domain/bloodreport"
	"github.com/bloodlab/bloodlab/internal/domain/dashboard"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

func TestDashboardAggregates(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	reports := newReportService(nil)
	repo := dashboard.NewRepoPG(testPool)

	asha := createTestPatient(t, "Asha Rao", "9876543210", "female", 34)
	ravi := createTestPatient(t, "Ravi Kumar", "9123456789", "male", 70)
	createTestPatient(t, "Kiran", "9000000009", "other", 12)

	today := dateonly.Of(time.Now())
	for _, req := range []bloodreport.CreateRequest{
		{PatientID: asha.ID, ReportDate: &today, Tests: hemogram()},
		{PatientID: asha.ID, ReportDate: &today, Status: ptrStr("pending"), Tests: hemogram()},
		{PatientID: ravi.ID, ReportDate: &today, Tests: hemogram()[:1]},
	} {
		if _, err := reports.CreateReport(ctx, req); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	t.Run("Counts", func(t *testing.T) {
		n, err := repo.CountReports(ctx)
		if err != nil || n != 3 {
			t.Errorf("CountReports = %d, %v", n, err)
		}
		n, err = repo.CountReportsSince(ctx, today)
		if err != nil || n != 3 {
			t.Errorf("CountReportsSince = %d, %v", n, err)
		}
		n, err = repo.CountPatients(ctx)
		if err != nil || n != 3 {
			t.Errorf("CountPatients = %d, %v", n, err)
		}
	})

	t.Run("Distributions", func(t *testing.T) {
		genders, err := repo.GenderCounts(ctx)
		if err != nil {
			t.Fatalf("GenderCounts: %v", err)
		}
		if len(genders) != 3 {
			t.Errorf("expected 3 genders, got %+v", genders)
		}

		ages, err := repo.AgeHistogram(ctx)
		if err != nil {
			t.Fatalf("AgeHistogram: %v", err)
		}
		if ages[34] != 1 || ages[70] != 1 || ages[12] != 1 {
			t.Errorf("unexpected histogram %v", ages)
		}

		statuses, err := repo.StatusCounts(ctx)
		if err != nil {
			t.Fatalf("StatusCounts: %v", err)
		}
		byStatus := map[string]int{}
		for _, s := range statuses {
			byStatus[s.Status] = s.Count
		}
		if byStatus["completed"] != 2 || byStatus["pending"] != 1 {
			t.Errorf("unexpected statuses %v", byStatus)
		}
	})

	t.Run("TopTests", func(t *testing.T) {
		top, err := repo.TopTests(ctx, 10)
		if err != nil {
			t.Fatalf("TopTests: %v", err)
		}
		if len(top) != 3 || top[0].TestName != "WBC" || top[0].Count != 3 {
			t.Errorf("expected WBC first with 3, got %+v", top)
		}
	})

	t.Run("Service", func(t *testing.T) {
		svc := dashboard.NewService(repo, reports, zerolog.Nop())
		stats, err := svc.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.TodayReports != 3 || stats.TotalPatients != 3 || len(stats.RecentReports) != 3 {
			t.Errorf("unexpected stats %+v", stats)
		}
		if len(stats.MonthlyTrend) != 6 || stats.MonthlyTrend[5].Count != 3 {
			t.Errorf("expected current month last with 3 reports, got %+v", stats.MonthlyTrend)
		}

		summary, err := svc.Summary(ctx, dateonly.PeriodMonth)
		if err != nil {
			t.Fatalf("Summary: %v", err)
		}
		if summary.TotalReports != 3 || summary.TotalPatients != 2 {
			t.Errorf("expected 3 reports across 2 patients, got %+v", summary)
		}
	})
}
