package bloodreport

import (
	"time"

	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// DefaultCategory groups tests submitted without a category.
const DefaultCategory = "General"

// PatientSummary is the slice of a patient carried on a report. List rows
// fill id, name, age, gender and phone; single reads add email and address;
// date-range rows carry the name only.
type PatientSummary struct {
	ID      int64   `json:"id,omitempty"`
	Name    string  `json:"name"`
	Age     *int    `json:"age,omitempty"`
	Gender  string  `json:"gender,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
}

type Report struct {
	ID           int64           `json:"id"`
	ReportNumber string          `json:"reportNumber"`
	PatientID    int64           `json:"patientId"`
	ReportDate   dateonly.Date   `json:"reportDate"`
	DoctorNotes  *string         `json:"doctorNotes,omitempty"`
	Status       string          `json:"status"`
	Active       bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Patient      *PatientSummary `json:"patient,omitempty"`
	Tests        []Test          `json:"tests,omitempty"`
}

// Test is one line item of a report.
type Test struct {
	ID             int64     `json:"id"`
	ReportID       int64     `json:"reportId"`
	Category       string    `json:"category"`
	TestName       string    `json:"testName"`
	ResultValue    string    `json:"resultValue"`
	Unit           *string   `json:"unit,omitempty"`
	NormalRange    *string   `json:"normalRange,omitempty"`
	ReferenceValue *float64  `json:"referenceValue,omitempty"`
	IsAbnormal     bool      `json:"isAbnormal"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type TestInput struct {
	Category       *string  `json:"category"`
	TestName       string   `json:"testName"`
	ResultValue    string   `json:"resultValue"`
	Unit           *string  `json:"unit"`
	NormalRange    *string  `json:"normalRange"`
	ReferenceValue *float64 `json:"referenceValue"`
	IsAbnormal     bool     `json:"isAbnormal"`
	Notes          *string  `json:"notes"`
}

type CreateRequest struct {
	PatientID   int64          `json:"patientId"`
	ReportDate  *dateonly.Date `json:"reportDate"`
	DoctorNotes *string        `json:"doctorNotes"`
	Status      *string        `json:"status"`
	Tests       []TestInput    `json:"tests"`
}

// UpdateRequest patches a report. A nil Tests leaves the test set alone; a
// non-nil one, even empty, replaces it.
type UpdateRequest struct {
	ReportDate  *dateonly.Date `json:"reportDate"`
	DoctorNotes *string        `json:"doctorNotes"`
	Status      *string        `json:"status"`
	Tests       *[]TestInput   `json:"tests"`
}

// ListFilter narrows List to active reports. Empty fields are ignored.
type ListFilter struct {
	PatientName  string
	PatientPhone string
	StartDate    *dateonly.Date
	EndDate      *dateonly.Date
	Status       string
}

type BulkDeleteResult struct {
	Deleted  []int64 `json:"deleted"`
	NotFound []int64 `json:"notFound,omitempty"`
}

// PeriodStats lists the active reports inside a named period.
type PeriodStats struct {
	dateonly.Range
	TotalReports int       `json:"totalReports"`
	Reports      []*Report `json:"reports"`
}

func validStatus(s string) bool {
	return s == StatusPending || s == StatusCompleted || s == StatusCancelled
}
