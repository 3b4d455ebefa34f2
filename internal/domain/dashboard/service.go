package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlab/bloodlab/internal/domain/bloodreport"
	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

const (
	recentReportsLimit = 5
	topTestsLimit      = 10
	trendMonths        = 6
	growthMonths       = 12
	monthLayout        = "2006-01"
)

// ReportRanger lists active reports in a date range. *bloodreport.Service
// satisfies it.
type ReportRanger interface {
	ReportsByDateRange(ctx context.Context, start, end dateonly.Date) ([]*bloodreport.Report, error)
}

// Recorder counts cache lookups. *metrics.Metrics satisfies it.
type Recorder interface {
	DashboardLookup(result string)
}

type Service struct {
	repo    Repository
	reports ReportRanger
	logger  zerolog.Logger
	now     func() time.Time

	cache    Cache
	cacheTTL time.Duration
	metrics  Recorder
}

func NewService(repo Repository, reports ReportRanger, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		reports: reports,
		logger:  logger.With().Str("component", "dashboard").Logger(),
		now:     time.Now,
	}
}

// SetCache enables read-through caching of the composite stats.
func (s *Service) SetCache(c Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

func (s *Service) SetMetrics(m Recorder) {
	s.metrics = m
}

func (s *Service) lookup(result string) {
	if s.metrics != nil {
		s.metrics.DashboardLookup(result)
	}
}

// Stats returns the composite dashboard. With a cache configured, a value
// computed earlier the same day is served until it expires. Cache failures
// fall back to computing.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	today := dateonly.Of(s.now())
	key := "stats:" + today.String()

	if s.cache != nil {
		var cached Stats
		found, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			s.lookup("error")
			s.logger.Warn().Err(err).Msg("dashboard cache read failed")
		case found:
			s.lookup("hit")
			return &cached, nil
		default:
			s.lookup("miss")
		}
	}

	stats, err := s.computeStats(ctx, today)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("dashboard cache write failed")
		}
	}
	return stats, nil
}

func (s *Service) computeStats(ctx context.Context, today dateonly.Date) (*Stats, error) {
	month := dateonly.Resolve(dateonly.PeriodMonth, today.Time).Start
	year := dateonly.Resolve(dateonly.PeriodYear, today.Time).Start

	var st Stats
	var err error
	if st.TodayReports, err = s.repo.CountReportsSince(ctx, today); err != nil {
		return nil, err
	}
	if st.MonthReports, err = s.repo.CountReportsSince(ctx, month); err != nil {
		return nil, err
	}
	if st.YearReports, err = s.repo.CountReportsSince(ctx, year); err != nil {
		return nil, err
	}
	if st.TotalPatients, err = s.repo.CountPatients(ctx); err != nil {
		return nil, err
	}
	if st.TotalReports, err = s.repo.CountReports(ctx); err != nil {
		return nil, err
	}
	if st.RecentReports, err = s.repo.RecentReports(ctx, recentReportsLimit); err != nil {
		return nil, err
	}
	if st.RecentReports == nil {
		st.RecentReports = []RecentReport{}
	}
	if st.MonthlyTrend, err = s.MonthlyTrend(ctx); err != nil {
		return nil, err
	}
	if st.GenderDistribution, err = s.GenderDistribution(ctx); err != nil {
		return nil, err
	}
	if st.AgeGroupDistribution, err = s.AgeGroupDistribution(ctx); err != nil {
		return nil, err
	}
	return &st, nil
}

// MonthlyTrend counts active reports per calendar month over the current
// month and the five before it. Months without reports are zero.
func (s *Service) MonthlyTrend(ctx context.Context) ([]MonthCount, error) {
	start := monthsBack(s.now(), trendMonths)
	counts, err := s.repo.ReportsPerMonth(ctx, dateonly.Of(start))
	if err != nil {
		return nil, err
	}
	return fillMonths(start, trendMonths, counts), nil
}

// PatientGrowth counts active patients by the month they were created, over
// the trailing twelve months.
func (s *Service) PatientGrowth(ctx context.Context) ([]MonthCount, error) {
	start := monthsBack(s.now(), growthMonths)
	counts, err := s.repo.PatientsPerMonth(ctx, start)
	if err != nil {
		return nil, err
	}
	return fillMonths(start, growthMonths, counts), nil
}

func (s *Service) GenderDistribution(ctx context.Context) ([]GenderCount, error) {
	out, err := s.repo.GenderCounts(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []GenderCount{}
	}
	return out, nil
}

// AgeGroupDistribution always returns every bucket, in order.
func (s *Service) AgeGroupDistribution(ctx context.Context) ([]AgeGroupCount, error) {
	hist, err := s.repo.AgeHistogram(ctx)
	if err != nil {
		return nil, err
	}
	return bucketAges(hist), nil
}

func (s *Service) ReportsByStatus(ctx context.Context) ([]StatusCount, error) {
	out, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []StatusCount{}
	}
	return out, nil
}

func (s *Service) TopTests(ctx context.Context) ([]TestCount, error) {
	out, err := s.repo.TopTests(ctx, topTestsLimit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []TestCount{}
	}
	return out, nil
}

func (s *Service) CustomDateRange(ctx context.Context, start, end dateonly.Date) (*RangeStats, error) {
	items, err := s.reports.ReportsByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return &RangeStats{StartDate: start, EndDate: end, TotalReports: len(items), Reports: items}, nil
}

// Summary reports the period's report count, the number of distinct patients
// among those reports and the average reports per day of the period.
func (s *Service) Summary(ctx context.Context, period string) (*Summary, error) {
	rng := dateonly.Resolve(period, s.now())
	items, err := s.reports.ReportsByDateRange(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	patients := make(map[int64]struct{}, len(items))
	for _, r := range items {
		patients[r.PatientID] = struct{}{}
	}

	sum := &Summary{Range: rng, TotalReports: len(items), TotalPatients: len(patients)}
	if days := rng.Days(); days > 0 {
		sum.AverageReportsPerDay = math.Round(float64(len(items))/float64(days)*100) / 100
	}
	return sum, nil
}

func (s *Service) PatientStats(ctx context.Context) (*PatientStats, error) {
	monthStart := dateonly.Resolve(dateonly.PeriodMonth, s.now()).Start

	var ps PatientStats
	var err error
	if ps.TotalPatients, err = s.repo.CountPatients(ctx); err != nil {
		return nil, err
	}
	if ps.NewPatientsThisMonth, err = s.repo.CountPatientsCreatedSince(ctx, monthStart.Time); err != nil {
		return nil, err
	}
	if ps.GenderDistribution, err = s.GenderDistribution(ctx); err != nil {
		return nil, err
	}
	if ps.AgeGroupDistribution, err = s.AgeGroupDistribution(ctx); err != nil {
		return nil, err
	}
	return &ps, nil
}

func bucketAges(hist map[int]int) []AgeGroupCount {
	out := make([]AgeGroupCount, len(ageGroups))
	for i, g := range ageGroups {
		out[i].AgeGroup = g.name
		for age, n := range hist {
			if age >= g.min && age <= g.max {
				out[i].Count += n
			}
		}
	}
	return out
}

// monthsBack returns the first day of the month n-1 months before now, so
// that the window holds n calendar months including the current one.
func monthsBack(now time.Time, n int) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m-time.Month(n-1), 1, 0, 0, 0, 0, time.UTC)
}

func fillMonths(start time.Time, n int, counts []MonthCount) []MonthCount {
	byMonth := make(map[string]int, len(counts))
	for _, c := range counts {
		byMonth[c.Month] += c.Count
	}
	out := make([]MonthCount, n)
	for i := range out {
		m := start.AddDate(0, i, 0).Format(monthLayout)
		out[i] = MonthCount{Month: m, Count: byMonth[m]}
	}
	return out
}

func validateRange(start, end *dateonly.Date) error {
	if start == nil || end == nil {
		return apperr.Validation("start date and end date are required", map[string]string{
			"startDate": "required", "endDate": "required",
		})
	}
	return nil
}
