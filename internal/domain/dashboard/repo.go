package dashboard

import (
	"context"
	"time"

	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

// Repository runs the read-only aggregate queries. Every count is over
// active rows except TopTests.
type Repository interface {
	CountReports(ctx context.Context) (int, error)
	CountReportsSince(ctx context.Context, since dateonly.Date) (int, error)
	CountPatients(ctx context.Context) (int, error)
	CountPatientsCreatedSince(ctx context.Context, since time.Time) (int, error)
	RecentReports(ctx context.Context, limit int) ([]RecentReport, error)
	ReportsPerMonth(ctx context.Context, since dateonly.Date) ([]MonthCount, error)
	PatientsPerMonth(ctx context.Context, since time.Time) ([]MonthCount, error)
	GenderCounts(ctx context.Context) ([]GenderCount, error)
	// AgeHistogram maps each age to the number of active patients of that age.
	AgeHistogram(ctx context.Context) (map[int]int, error)
	StatusCounts(ctx context.Context) ([]StatusCount, error)
	// TopTests counts test names across every report, active or not.
	TopTests(ctx context.Context, limit int) ([]TestCount, error)
}
