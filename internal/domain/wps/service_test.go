package wps

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 2, 5, 6, 7, 0, 0, time.UTC)

func newTestService(store *fakeStore, jobs JobRunner) *Service {
	loc := time.FixedZone("AST", 3*60*60)
	return NewService(store, jobs, loc).WithClock(func() time.Time { return fixedNow })
}

func seededStore() *fakeStore {
	store := newFakeStore()
	store.settings = Settings{EmployerEID: "EMP1", PayerEID: "PAY1", PayerQID: "Q1", PayerBankShortName: "QNB", PayerIBAN: "QA01", SIFVersion: "1"}
	store.records = []PayrollRecord{
		slip("s1", "E1", "3000", "2024-01-01"),
		slip("s2", "E2", "2500", "2024-01-01"),
		slip("s3", "E3", "4000", "2024-01-01"),
	}
	store.lines = []ComponentLine{
		{SlipID: "s1", ComponentName: "Basic", Amount: dec("2000")},
		{SlipID: "s1", ComponentName: "Housing Allowance", Amount: dec("500")},
		{SlipID: "s1", ComponentName: "Food Allowance", Amount: dec("100")},
		{SlipID: "s2", ComponentName: "Basic", Amount: dec("2500")},
		{SlipID: "s3", ComponentName: "Basic", Amount: dec("3000")},
		{SlipID: "s3", ComponentName: "Transportation Allowance", Amount: dec("200")},
	}
	return store
}

func januaryFilters() Filters {
	from := day("2024-01-01")
	to := day("2024-01-31")
	return Filters{FromDate: &from, ToDate: &to}
}

func submittedBatch(t *testing.T, svc *Service, filters Filters) Batch {
	t.Helper()
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, filters, "u1")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	batch, err = svc.Submit(ctx, batch.ID)
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	return batch
}

func TestReportHousingScenario(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	report, err := svc.Report(context.Background(), januaryFilters())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(report.Rows))
	}
	row := report.Rows[0]
	if row.EmployeeID != "E1" || !row.HousingAllowance.Equal(dec("500")) {
		t.Fatalf("unexpected first row %+v", row)
	}
	want := dec("3000").Sub(row.BaseSalary.Add(dec("500")).Add(row.FoodAllowance).Add(row.TransportationAllowance))
	if !row.ExtraIncome.Equal(want) || !row.ExtraIncome.Equal(dec("400")) {
		t.Fatalf("expected remaining 400, got %s", row.ExtraIncome)
	}
	if report.Metadata.SalaryPeriod != "202401" || report.Metadata.TotalRecords != 3 {
		t.Fatalf("unexpected metadata %+v", report.Metadata)
	}
	if !report.Metadata.TotalSalaries.Equal(dec("9500")) {
		t.Fatalf("expected total 9500, got %s", report.Metadata.TotalSalaries)
	}
	if report.Metadata.CreationDate != "20240205" || report.Metadata.CreationTime != "0907" {
		t.Fatalf("expected creation stamp in configured zone, got %s %s", report.Metadata.CreationDate, report.Metadata.CreationTime)
	}
	for i, r := range report.Rows {
		if r.Sno != i+1 {
			t.Fatalf("expected sno %d, got %d", i+1, r.Sno)
		}
		if r.Comments != "Salary For January 2024" {
			t.Fatalf("unexpected comments %q", r.Comments)
		}
	}
}

func TestReportOnlySubmittedSlips(t *testing.T) {
	store := seededStore()
	draft := slip("s4", "E4", "100", "2024-01-01")
	draft.DocStatus = SlipDocStatusDraft
	cancelled := slip("s5", "E5", "100", "2024-01-01")
	cancelled.DocStatus = SlipDocStatusCancelled
	store.records = append(store.records, draft, cancelled)

	svc := newTestService(store, nil)
	low := dec("0")
	high := dec("3500")
	filterSets := []Filters{
		{},
		januaryFilters(),
		{Department: "Operations"},
		{FromRange: &low, ToRange: &high},
	}
	for _, filters := range filterSets {
		records, err := store.SelectRecords(context.Background(), filters)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		for _, rec := range records {
			if rec.DocStatus != SlipDocStatusSubmitted {
				t.Fatalf("selected non submitted slip %s", rec.SlipID)
			}
		}
	}

	report, err := svc.Report(context.Background(), Filters{FromRange: &low, ToRange: &high})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("expected both range bounds applied, got %d rows", len(report.Rows))
	}
}

func TestReportRejectsInvalidFilters(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	from := day("2024-02-01")
	to := day("2024-01-01")
	_, err := svc.Report(context.Background(), Filters{FromDate: &from, ToDate: &to})
	if !errors.Is(err, ErrInvalidFilters) {
		t.Fatalf("expected ErrInvalidFilters, got %v", err)
	}
}

func TestCreateBatchExcludesReportedEmployees(t *testing.T) {
	store := seededStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	first := submittedBatch(t, svc, Filters{Department: "Operations", FromRange: ptr(dec("3000")), ToRange: ptr(dec("3000"))})
	if len(first.Employees) != 1 || first.Employees[0].EmployeeID != "E1" {
		t.Fatalf("unexpected first batch %+v", first.Employees)
	}

	second, err := svc.CreateBatch(ctx, januaryFilters(), "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, emp := range second.Employees {
		if emp.EmployeeID == "E1" {
			t.Fatal("employee from submitted batch should be excluded")
		}
	}
	if len(second.Employees) != 2 {
		t.Fatalf("expected 2 employees, got %d", len(second.Employees))
	}
}

func TestSubmitRequiresEmployees(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	ctx := context.Background()
	from := day("2030-01-01")
	batch, err := svc.CreateBatch(ctx, Filters{FromDate: &from}, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Submit(ctx, batch.ID); !errors.Is(err, ErrNoEmployees) {
		t.Fatalf("expected ErrNoEmployees, got %v", err)
	}
	if ErrNoEmployees.Error() != "No employees remaining for WPS" {
		t.Fatalf("unexpected message %q", ErrNoEmployees.Error())
	}
}

func TestSubmitRejectsDoubleClaim(t *testing.T) {
	store := seededStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	a, err := svc.CreateBatch(ctx, januaryFilters(), "u1")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.CreateBatch(ctx, januaryFilters(), "u2")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := svc.Submit(ctx, a.ID); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	if _, err := svc.Submit(ctx, b.ID); !errors.Is(err, ErrEmployeesAlreadyReported) {
		t.Fatalf("expected ErrEmployeesAlreadyReported, got %v", err)
	}

	refreshed, err := svc.Validate(ctx, b.ID)
	if err != nil {
		t.Fatalf("refresh b: %v", err)
	}
	if len(refreshed.Employees) != 0 {
		t.Fatalf("expected no remaining employees, got %d", len(refreshed.Employees))
	}
}

func TestStateTransitions(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	ctx := context.Background()

	draft, err := svc.CreateBatch(ctx, januaryFilters(), "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.GenerateExport(ctx, draft.ID, FormatCSV); !errors.Is(err, ErrBatchNotSubmitted) {
		t.Fatalf("expected ErrBatchNotSubmitted, got %v", err)
	}

	submitted, err := svc.Submit(ctx, draft.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != BatchStatusSubmitted || submitted.SubmittedAt == nil {
		t.Fatalf("unexpected batch %+v", submitted)
	}
	if _, err := svc.Submit(ctx, draft.ID); !errors.Is(err, ErrBatchNotDraft) {
		t.Fatalf("expected ErrBatchNotDraft on resubmit, got %v", err)
	}
	if _, err := svc.UpdateBatch(ctx, draft.ID, januaryFilters()); !errors.Is(err, ErrBatchNotDraft) {
		t.Fatalf("expected ErrBatchNotDraft on update, got %v", err)
	}
	if _, err := svc.Validate(ctx, draft.ID); !errors.Is(err, ErrBatchNotDraft) {
		t.Fatalf("expected ErrBatchNotDraft on refresh, got %v", err)
	}
	if _, err := svc.GetBatch(ctx, "missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestUpdateBatchRepopulates(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, januaryFilters(), "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	filters := januaryFilters()
	filters.FromRange = ptr(dec("3500"))
	updated, err := svc.UpdateBatch(ctx, batch.ID, filters)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Employees) != 1 || updated.Employees[0].EmployeeID != "E3" {
		t.Fatalf("unexpected employees %+v", updated.Employees)
	}
}

func TestGenerateExportCSV(t *testing.T) {
	jobs := &fakeJobs{}
	svc := newTestService(seededStore(), jobs)
	batch := submittedBatch(t, svc, januaryFilters())

	export, err := svc.GenerateExport(context.Background(), batch.ID, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Filename != "SIF_EMP1_QNB_20240205_0907" {
		t.Fatalf("unexpected filename %s", export.Filename)
	}
	if export.Format != FormatCSV || export.ContentType != "text/csv" {
		t.Fatalf("unexpected format %s %s", export.Format, export.ContentType)
	}
	lines := strings.Split(strings.TrimSpace(string(export.Content)), "\r\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "EMP1,20240205,0907,PAY1,Q1,QNB,QA01,202401,9500.00,3,1") {
		t.Fatalf("unexpected metadata line %q", lines[1])
	}
	if len(jobs.runs) != 1 || jobs.runs[0] != JobExport {
		t.Fatalf("expected one export job run, got %v", jobs.runs)
	}
}

func TestGenerateExportXLSX(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	batch := submittedBatch(t, svc, januaryFilters())
	export, err := svc.GenerateExport(context.Background(), batch.ID, FormatXLSX)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.HasPrefix(export.Content, []byte("PK")) {
		t.Fatal("expected zip container for xlsx")
	}
	if _, err := svc.GenerateExport(context.Background(), batch.ID, "pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestGenerateExportIsRepeatable(t *testing.T) {
	store := seededStore()
	svc := newTestService(store, nil)
	batch := submittedBatch(t, svc, januaryFilters())
	ctx := context.Background()

	first, err := svc.GenerateExport(ctx, batch.ID, FormatCSV)
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	second, err := svc.GenerateExport(ctx, batch.ID, FormatCSV)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if !bytes.Equal(first.Content, second.Content) {
		t.Fatal("expected identical content with unchanged data and clock")
	}

	svc.WithClock(func() time.Time { return fixedNow.Add(26 * time.Hour) })
	third, err := svc.GenerateExport(ctx, batch.ID, FormatCSV)
	if err != nil {
		t.Fatalf("third export: %v", err)
	}
	a := strings.Split(string(first.Content), "\r\n")
	b := strings.Split(string(third.Content), "\r\n")
	for i := range a {
		if i == 1 {
			continue
		}
		if a[i] != b[i] {
			t.Fatalf("line %d differs outside metadata: %q vs %q", i, a[i], b[i])
		}
	}
	if strings.Replace(b[1], "20240206,1107", "20240205,0907", 1) != a[1] {
		t.Fatalf("metadata should differ only in creation stamp: %q vs %q", a[1], b[1])
	}
}

func TestGenerateExportNoData(t *testing.T) {
	store := seededStore()
	jobs := &fakeJobs{}
	svc := newTestService(store, jobs)
	batch := submittedBatch(t, svc, januaryFilters())

	// Slips cancelled after submission leave nothing to report.
	for i := range store.records {
		store.records[i].DocStatus = SlipDocStatusCancelled
	}
	if _, err := svc.GenerateExport(context.Background(), batch.ID, FormatCSV); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if len(jobs.runs) != 1 {
		t.Fatalf("expected job run recorded, got %v", jobs.runs)
	}
}

func TestGenerateExportEmptyBatchIsNoData(t *testing.T) {
	store := seededStore()
	svc := newTestService(store, nil)
	store.batches["b1"] = &Batch{ID: "b1", Status: BatchStatusSubmitted}
	if _, err := svc.GenerateExport(context.Background(), "b1", FormatCSV); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestDefaultReportFilters(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	filters := svc.DefaultReportFilters()
	if filters.FromDate.Format("2006-01-02") != "2024-01-05" || filters.ToDate.Format("2006-01-02") != "2024-02-05" {
		t.Fatalf("unexpected defaults %s %s", filters.FromDate, filters.ToDate)
	}
}

func TestSaveCategoryMappingsRejectsUnknownCategory(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	ctx := context.Background()
	if _, err := svc.SaveCategoryMappings(ctx, []CategoryMapping{{ComponentName: "Bonus", Category: "bonus"}}); !errors.Is(err, ErrInvalidFilters) {
		t.Fatalf("expected ErrInvalidFilters, got %v", err)
	}
	out, err := svc.SaveCategoryMappings(ctx, []CategoryMapping{{ComponentName: "Basic Salary", Category: CategoryBasic}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(out) != len(DefaultCategoryMappings)+1 {
		t.Fatalf("expected appended mapping, got %d", len(out))
	}
}

func TestSummaryPDF(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	batch := submittedBatch(t, svc, januaryFilters())
	content, name, err := svc.SummaryPDF(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		t.Fatal("expected pdf content")
	}
	if name != "wps-batch-"+batch.ID+".pdf" {
		t.Fatalf("unexpected name %s", name)
	}
}
