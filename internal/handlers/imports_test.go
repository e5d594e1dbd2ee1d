package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kaigo-note/api/internal/services"
)

type stubImportService struct {
	importFunc func(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error)
}

func (s *stubImportService) ImportVisits(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error) {
	if s.importFunc != nil {
		return s.importFunc(ctx, cmd)
	}
	return services.ImportSummary{}, nil
}

type stubArchiver struct {
	importID string
	payload  []byte
	err      error
}

func (s *stubArchiver) Store(_ context.Context, importID string, payload []byte) (string, error) {
	s.importID = importID
	s.payload = append([]byte(nil), payload...)
	if s.err != nil {
		return "", s.err
	}
	return "imports/2024/06/" + importID + ".csv", nil
}

const importCSVHeader = "user_name,service_date,start_time,end_time,service_content\n"

func TestImportHandlersImportVisits_Success(t *testing.T) {
	started := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	var received services.ImportCommand
	svc := &stubImportService{
		importFunc: func(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error) {
			received = cmd
			return services.ImportSummary{
				ImportID:    "imp_test01",
				Total:       2,
				Imported:    2,
				StartedAt:   started,
				CompletedAt: started.Add(time.Second),
			}, nil
		},
	}
	archive := &stubArchiver{}
	handler := NewImportHandlers(svc, WithImportArchiver(archive))

	csvBody := importCSVHeader +
		"田中　太郎,2024/06/03,09:00,10:00,入浴介助\n" +
		"山田花子,2024/06/03,14:00,15:00,食事介助\n"
	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(csvBody))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(received.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(received.Rows))
	}
	if received.Rows[0].UserName != "田中　太郎" {
		t.Fatalf("unexpected first user %q", received.Rows[0].UserName)
	}
	if archive.importID != "imp_test01" {
		t.Fatalf("expected archive keyed by import id, got %q", archive.importID)
	}
	if !bytes.Equal(archive.payload, []byte(csvBody)) {
		t.Fatalf("expected archive to receive raw payload")
	}

	var payload importSummaryResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.ImportID != "imp_test01" {
		t.Fatalf("unexpected import id %q", payload.ImportID)
	}
	if payload.Imported != 2 || payload.Total != 2 {
		t.Fatalf("unexpected counters: %+v", payload)
	}
	if payload.StartedAt != "2024-06-03T12:00:00Z" {
		t.Fatalf("unexpected startedAt %q", payload.StartedAt)
	}
}

func TestImportHandlersImportVisits_MergesParseErrors(t *testing.T) {
	svc := &stubImportService{
		importFunc: func(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error) {
			if len(cmd.Rows) != 1 {
				t.Fatalf("expected 1 importable row, got %d", len(cmd.Rows))
			}
			return services.ImportSummary{ImportID: "imp_test02", Total: 1, Imported: 1}, nil
		},
	}
	handler := NewImportHandlers(svc)

	csvBody := importCSVHeader +
		"田中　太郎,2024/06/03,09:00,10:00,入浴介助\n" +
		"山田花子,not-a-date,14:00,15:00,食事介助\n"
	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(csvBody))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload importSummaryResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.Total != 2 {
		t.Fatalf("expected total 2 including rejected row, got %d", payload.Total)
	}
	if payload.Rejected != 1 {
		t.Fatalf("expected 1 rejected row, got %d", payload.Rejected)
	}
	if len(payload.RowErrors) != 1 || payload.RowErrors[0].Row != 2 {
		t.Fatalf("expected row error for row 2, got %+v", payload.RowErrors)
	}
}

func TestImportHandlersImportVisits_NoImportableRows(t *testing.T) {
	called := false
	svc := &stubImportService{
		importFunc: func(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error) {
			called = true
			return services.ImportSummary{}, nil
		},
	}
	handler := NewImportHandlers(svc)

	csvBody := importCSVHeader + "山田花子,not-a-date,14:00,15:00,食事介助\n"
	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(csvBody))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if called {
		t.Fatalf("expected import service not to be called")
	}
	if !strings.Contains(resp.Body.String(), "invalid_csv") {
		t.Fatalf("expected invalid_csv error, got %s", resp.Body.String())
	}
}

func TestImportHandlersImportVisits_MissingHeader(t *testing.T) {
	handler := NewImportHandlers(&stubImportService{})

	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString("a,b,c\n1,2,3\n"))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestImportHandlersImportVisits_EmptyBody(t *testing.T) {
	handler := NewImportHandlers(&stubImportService{})

	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(""))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestImportHandlersImportVisits_ArchiveFailureIsNonFatal(t *testing.T) {
	svc := &stubImportService{
		importFunc: func(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error) {
			return services.ImportSummary{ImportID: "imp_test03", Total: 1, Imported: 1}, nil
		},
	}
	archive := &stubArchiver{err: errors.New("bucket unavailable")}
	var events []string
	logger := func(_ context.Context, event string, _ map[string]any) {
		events = append(events, event)
	}
	handler := NewImportHandlers(svc, WithImportArchiver(archive), WithImportLogger(logger))

	csvBody := importCSVHeader + "田中　太郎,2024/06/03,09:00,10:00,入浴介助\n"
	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(csvBody))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(events) != 1 || events[0] != "import.archive_failed" {
		t.Fatalf("expected archive failure event, got %v", events)
	}
}

func TestImportHandlersImportVisits_ServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: services.ErrImportInvalidInput, status: http.StatusBadRequest},
		{name: "unavailable", err: services.ErrImportUnavailable, status: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubImportService{
				importFunc: func(ctx context.Context, cmd services.ImportCommand) (services.ImportSummary, error) {
					return services.ImportSummary{}, tc.err
				},
			}
			handler := NewImportHandlers(svc)

			csvBody := importCSVHeader + "田中　太郎,2024/06/03,09:00,10:00,入浴介助\n"
			req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(csvBody))
			resp := httptest.NewRecorder()

			handler.importVisits(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestImportHandlersImportVisits_NoService(t *testing.T) {
	handler := NewImportHandlers(nil)

	req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString("x"))
	resp := httptest.NewRecorder()

	handler.importVisits(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}
