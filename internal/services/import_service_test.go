package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	domain "github.com/kaigo-note/api/internal/domain"
)

type stubResolutionService struct {
	resolved map[string]string
}

func (s *stubResolutionService) Resolve(_ context.Context, cmd ResolveNameCommand) (NameResolution, error) {
	resolution := NameResolution{Input: cmd.Raw, Kind: cmd.Kind}
	if name, ok := s.resolved[cmd.Raw]; ok {
		resolution.Resolved = true
		resolution.ResolvedName = name
		resolution.Score = 1
		return resolution, nil
	}
	resolution.RequiresManualReview = true
	return resolution, nil
}

type fakeImportPublisher struct {
	messages []ImportCompletedMessage
	err      error
}

func (f *fakeImportPublisher) PublishImportCompleted(_ context.Context, message ImportCompletedMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, message)
	return "msg-1", nil
}

func importRow(user, staff string) domain.ImportRow {
	return domain.ImportRow{
		UserName:       user,
		StaffName:      staff,
		ServiceDate:    time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		StartTime:      "09:00",
		EndTime:        "10:00",
		ServiceContent: "入浴介助",
	}
}

func newImportService(t *testing.T, visits *fakeVisitRepo, events ImportEventPublisher, batchSize int) ImportService {
	t.Helper()
	svc, err := NewImportService(ImportServiceDeps{
		Visits: visits,
		Resolution: &stubResolutionService{resolved: map[string]string{
			"〇田中　太郎": "田中 太郎",
			"山田花子":    "山田 花子",
		}},
		RecordClock: NewRecordClock(rand.NewSource(1)),
		Events:      events,
		Clock:       fixedClock,
		IDGenerator: func() string { return "TESTID" },
		BatchSize:   batchSize,
	})
	if err != nil {
		t.Fatalf("NewImportService: %v", err)
	}
	return svc
}

func TestImportVisitsResolvesAndPersists(t *testing.T) {
	visits := &fakeVisitRepo{}
	events := &fakeImportPublisher{}
	svc := newImportService(t, visits, events, 50)

	summary, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: []domain.ImportRow{
		importRow("〇田中　太郎", "山田花子"),
	}})
	if err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if summary.Total != 1 || summary.Imported != 1 || summary.Rejected != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(visits.inserted) != 1 || len(visits.inserted[0]) != 1 {
		t.Fatalf("inserted batches = %v", visits.inserted)
	}
	record := visits.inserted[0][0]
	if record.UserName != "田中 太郎" || record.StaffName != "山田 花子" {
		t.Fatalf("record names = %q / %q", record.UserName, record.StaffName)
	}
	if record.ManualReview {
		t.Fatal("fully resolved record flagged for review")
	}
	if !strings.HasPrefix(record.ID, "visit_") {
		t.Fatalf("record ID = %q", record.ID)
	}
	if record.RecordedAt.IsZero() || record.PrintedAt.IsZero() {
		t.Fatal("timestamps were not synthesized")
	}
}

func TestImportVisitsFlagsUnresolvedForReview(t *testing.T) {
	visits := &fakeVisitRepo{}
	svc := newImportService(t, visits, nil, 50)

	summary, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: []domain.ImportRow{
		importRow("未知の利用者", ""),
	}})
	if err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if summary.Imported != 1 || summary.ManualReview != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	record := visits.inserted[0][0]
	if !record.ManualReview {
		t.Fatal("unresolved record not flagged for review")
	}
	if record.UserName != "未知の利用者" {
		t.Fatalf("raw name was rewritten to %q", record.UserName)
	}
}

func TestImportVisitsRejectsInvalidRows(t *testing.T) {
	visits := &fakeVisitRepo{}
	svc := newImportService(t, visits, nil, 50)

	bad := importRow("", "")
	good := importRow("〇田中　太郎", "")
	summary, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: []domain.ImportRow{bad, good}})
	if err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if summary.Rejected != 1 || summary.Imported != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.RowErrors) != 1 || summary.RowErrors[0].Row != 1 {
		t.Fatalf("row errors = %v", summary.RowErrors)
	}
}

func TestImportVisitsBatchesSequentially(t *testing.T) {
	visits := &fakeVisitRepo{}
	svc := newImportService(t, visits, nil, 2)

	rows := make([]domain.ImportRow, 5)
	for i := range rows {
		rows[i] = importRow("〇田中　太郎", "")
	}
	summary, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: rows})
	if err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if len(summary.Batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(summary.Batches))
	}
	if summary.Batches[2].Size != 1 {
		t.Fatalf("last batch size = %d, want 1", summary.Batches[2].Size)
	}
	if summary.Imported != 5 {
		t.Fatalf("imported = %d, want 5", summary.Imported)
	}
}

func TestImportVisitsContinuesAfterBatchFailure(t *testing.T) {
	visits := &fakeVisitRepo{insertErrs: []error{errors.New("backend down")}}
	svc := newImportService(t, visits, nil, 2)

	rows := make([]domain.ImportRow, 4)
	for i := range rows {
		rows[i] = importRow("〇田中　太郎", "")
	}
	summary, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: rows})
	if err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if summary.Imported != 2 {
		t.Fatalf("imported = %d, want 2 after first batch failed", summary.Imported)
	}
	if summary.Batches[0].Err == "" || summary.Batches[1].Err != "" {
		t.Fatalf("batches = %+v", summary.Batches)
	}
	if len(visits.inserted) != 2 {
		t.Fatalf("InsertBatch called %d times, want 2", len(visits.inserted))
	}
}

func TestImportVisitsPublishesCompletion(t *testing.T) {
	events := &fakeImportPublisher{}
	svc := newImportService(t, &fakeVisitRepo{}, events, 50)

	if _, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: []domain.ImportRow{importRow("〇田中　太郎", "")}}); err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if len(events.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(events.messages))
	}
	msg := events.messages[0]
	if msg.Total != 1 || msg.Imported != 1 {
		t.Fatalf("message = %+v", msg)
	}
	if !strings.HasPrefix(msg.ImportID, "imp_") {
		t.Fatalf("import ID = %q", msg.ImportID)
	}
}

func TestImportVisitsPublishFailureIsNonFatal(t *testing.T) {
	events := &fakeImportPublisher{err: errors.New("topic gone")}
	svc := newImportService(t, &fakeVisitRepo{}, events, 50)

	summary, err := svc.ImportVisits(context.Background(), ImportCommand{Rows: []domain.ImportRow{importRow("〇田中　太郎", "")}})
	if err != nil {
		t.Fatalf("ImportVisits: %v", err)
	}
	if summary.Imported != 1 {
		t.Fatalf("imported = %d, want 1", summary.Imported)
	}
}

func TestImportVisitsEmptyCommand(t *testing.T) {
	svc := newImportService(t, &fakeVisitRepo{}, nil, 50)
	if _, err := svc.ImportVisits(context.Background(), ImportCommand{}); !errors.Is(err, ErrImportInvalidInput) {
		t.Fatalf("err = %v, want ErrImportInvalidInput", err)
	}
}
