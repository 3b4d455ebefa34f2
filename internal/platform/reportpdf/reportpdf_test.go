package reportpdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlab/bloodlab/internal/domain/bloodreport"
	"github.com/bloodlab/bloodlab/pkg/dateonly"
)

func strp(s string) *string { return &s }

func sampleReport(n int) *bloodreport.Report {
	age := 42
	r := &bloodreport.Report{
		ID:           7,
		ReportNumber: "BR1710460800000ABCDE",
		PatientID:    3,
		ReportDate:   dateonly.Of(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		Status:       bloodreport.StatusCompleted,
		Active:       true,
		DoctorNotes:  strp("Repeat lipid profile after 3 months. Résumé attached."),
		Patient:      &bloodreport.PatientSummary{ID: 3, Name: "Asha Rao", Age: &age, Gender: "female", Phone: "+919876543210"},
	}
	cats := []string{"Hematology", "Biochemistry", ""}
	for i := 0; i < n; i++ {
		r.Tests = append(r.Tests, bloodreport.Test{
			ID:          int64(i + 1),
			ReportID:    7,
			Category:    cats[i%len(cats)],
			TestName:    fmt.Sprintf("Test %03d", i),
			ResultValue: "13.5",
			Unit:        strp("g/dL"),
			NormalRange: strp("12-16"),
			IsAbnormal:  i%4 == 0,
		})
	}
	return r
}

func TestRender_WritesPDF(t *testing.T) {
	var buf bytes.Buffer
	err := New(Options{LabName: "City Lab"}).Render(&buf, sampleReport(6))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	assert.Greater(t, buf.Len(), 1000)
}

func TestRender_NoTestsNoNotes(t *testing.T) {
	r := sampleReport(0)
	r.DoctorNotes = nil
	r.Patient.Age = nil

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, r))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestRender_NilReport(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, New(Options{}).Render(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestRender_LongReportPaginates(t *testing.T) {
	var one, many bytes.Buffer
	require.NoError(t, New(Options{}).Render(&one, sampleReport(3)))
	require.NoError(t, New(Options{}).Render(&many, sampleReport(200)))

	assert.Equal(t, 1, bytes.Count(one.Bytes(), []byte("/Type /Page\n")))
	assert.Greater(t, bytes.Count(many.Bytes(), []byte("/Type /Page\n")), 1)
}

func pageCount(b []byte) int {
	return bytes.Count(b, []byte("/Type /Page\n"))
}

func TestRender_LongNotesFlowOntoNewPages(t *testing.T) {
	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, fmt.Sprintf("Observation %03d: follow up with fasting sample.", i))
	}
	r := sampleReport(2)
	r.DoctorNotes = strp(strings.Join(lines, "\n"))

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, r))

	// 300 lines at 5.5mm need about 1650mm against a 262mm page body.
	assert.GreaterOrEqual(t, pageCount(buf.Bytes()), 7)
}

func TestRender_LongUnbrokenNotesWrap(t *testing.T) {
	r := sampleReport(1)
	r.DoctorNotes = strp(strings.Repeat("Patient advised hydration and rest. ", 400))

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, r))
	assert.Greater(t, pageCount(buf.Bytes()), 1)
}

func newDoc() *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	return pdf
}

func TestLayoutRow_WrapsLongColumns(t *testing.T) {
	pdf := newDoc()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	short := layoutRow(pdf, tr, bloodreport.Test{TestName: "Hemoglobin", ResultValue: "13.5", Unit: strp("g/dL"), NormalRange: strp("12-16")})
	assert.Equal(t, rowHeight, short.height)

	long := layoutRow(pdf, tr, bloodreport.Test{
		TestName:    strings.Repeat("Glycated haemoglobin fraction ", 4),
		ResultValue: "6.1",
		NormalRange: strp(strings.Repeat("4.0-5.6 non diabetic, 5.7-6.4 prediabetic ", 2)),
		Unit:        strp("%"),
		IsAbnormal:  true,
	})
	assert.Greater(t, len(long.cols[0]), 1)
	assert.Greater(t, len(long.cols[2]), 1)
	assert.Len(t, long.cols[1], 1)
	assert.True(t, long.abnormal)
	assert.Equal(t, float64(max(len(long.cols[0]), len(long.cols[2])))*rowHeight, long.height)

	for _, line := range long.cols[0] {
		assert.LessOrEqual(t, pdf.GetStringWidth(line), colWidths[0])
	}
}

func TestDrawRow_AdvancesPastTallestColumn(t *testing.T) {
	pdf := newDoc()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	r := layoutRow(pdf, tr, bloodreport.Test{TestName: strings.Repeat("Very long test description ", 8), ResultValue: "1"})

	_, y := pdf.GetXY()
	drawRow(pdf, r)
	x, after := pdf.GetXY()
	assert.Equal(t, marginLeft, x)
	assert.InDelta(t, y+r.height, after, 0.001)
	require.NoError(t, pdf.Error())
}

func TestWrap_EmptyText(t *testing.T) {
	pdf := newDoc()
	pdf.SetFont("Helvetica", "", 10)
	assert.Equal(t, []string{""}, wrap(pdf, "", 40))
}

func TestRender_DoesNotMutateReport(t *testing.T) {
	r := sampleReport(5)
	before := fmt.Sprintf("%+v", r.Tests)

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, r))
	assert.Equal(t, before, fmt.Sprintf("%+v", r.Tests))
	assert.Equal(t, "", r.Tests[2].Category)
}

func TestGroupByCategory(t *testing.T) {
	tests := []bloodreport.Test{
		{TestName: "Hb", Category: "Hematology"},
		{TestName: "Glucose", Category: "Biochemistry"},
		{TestName: "WBC", Category: "Hematology"},
		{TestName: "Note", Category: "  "},
		{TestName: "Urea", Category: "Biochemistry"},
	}

	got := GroupByCategory(tests)
	require.Len(t, got, 3)
	assert.Equal(t, "Hematology", got[0].Name)
	assert.Equal(t, "Biochemistry", got[1].Name)
	assert.Equal(t, bloodreport.DefaultCategory, got[2].Name)
	assert.Equal(t, []string{"Hb", "WBC"}, []string{got[0].Tests[0].TestName, got[0].Tests[1].TestName})
	assert.Len(t, got[1].Tests, 2)
	assert.Empty(t, GroupByCategory(nil))
}

func TestReferenceText(t *testing.T) {
	assert.Equal(t, "12-16 g/dL", referenceText(bloodreport.Test{NormalRange: strp("12-16"), Unit: strp("g/dL")}))
	assert.Equal(t, "- mg/dL", referenceText(bloodreport.Test{Unit: strp("mg/dL")}))
	assert.Equal(t, "-", referenceText(bloodreport.Test{}))
}
