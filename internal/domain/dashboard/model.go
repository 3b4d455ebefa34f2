package dashboard

import (
	"time"

	"github.com/bloodlab/bloodlab/internal/domain/bloodreport"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

// Stats is the composite payload behind GET /dashboard/stats.
type Stats struct {
	TodayReports         int             `json:"todayReports"`
	MonthReports         int             `json:"monthReports"`
	YearReports          int             `json:"yearReports"`
	TotalPatients        int             `json:"totalPatients"`
	TotalReports         int             `json:"totalReports"`
	RecentReports        []RecentReport  `json:"recentReports"`
	MonthlyTrend         []MonthCount    `json:"monthlyTrend"`
	GenderDistribution   []GenderCount   `json:"genderDistribution"`
	AgeGroupDistribution []AgeGroupCount `json:"ageGroupDistribution"`
}

type RecentReport struct {
	ID           int64         `json:"id"`
	ReportNumber string        `json:"reportNumber"`
	ReportDate   dateonly.Date `json:"reportDate"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	Patient      RecentPatient `json:"patient"`
}

type RecentPatient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MonthCount is one point of a monthly series; Month is "2006-01".
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type GenderCount struct {
	Gender string `json:"gender"`
	Count  int    `json:"count"`
}

type AgeGroupCount struct {
	AgeGroup string `json:"ageGroup"`
	Count    int    `json:"count"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type TestCount struct {
	TestName string `json:"testName"`
	Count    int    `json:"count"`
}

type RangeStats struct {
	StartDate    dateonly.Date         `json:"startDate"`
	EndDate      dateonly.Date         `json:"endDate"`
	TotalReports int                   `json:"totalReports"`
	Reports      []*bloodreport.Report `json:"reports"`
}

type Summary struct {
	dateonly.Range
	TotalReports         int     `json:"totalReports"`
	TotalPatients        int     `json:"totalPatients"`
	AverageReportsPerDay float64 `json:"averageReportsPerDay"`
}

// PatientStats backs GET /patients/stats.
type PatientStats struct {
	TotalPatients        int             `json:"totalPatients"`
	NewPatientsThisMonth int             `json:"newPatientsThisMonth"`
	GenderDistribution   []GenderCount   `json:"genderDistribution"`
	AgeGroupDistribution []AgeGroupCount `json:"ageGroupDistribution"`
}

type ageGroup struct {
	name     string
	min, max int
}

var ageGroups = []ageGroup{
	{"0-18", 0, 18},
	{"19-30", 19, 30},
	{"31-50", 31, 50},
	{"51-65", 51, 65},
	{"65+", 66, 150},
}
