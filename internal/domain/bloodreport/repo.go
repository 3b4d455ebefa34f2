package bloodreport

import (
	"context"

	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

type ReportRepository interface {
	// Create inserts the header and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, r *Report) error
	// GetByID returns the header with the full patient projection, active or not.
	GetByID(ctx context.Context, id int64) (*Report, error)
	Update(ctx context.Context, r *Report) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Report, int, error)
	ListByDateRange(ctx context.Context, start, end dateonly.Date) ([]*Report, error)

	InsertTests(ctx context.Context, reportID int64, tests []Test) error
	DeleteTests(ctx context.Context, reportID int64) error
	// ListTests returns the report's tests by test name, then id.
	ListTests(ctx context.Context, reportID int64) ([]Test, error)
}
