package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kaigo-note/api/internal/platform/csvio"
	"github.com/kaigo-note/api/internal/platform/httpx"
	"github.com/kaigo-note/api/internal/services"
)

const maxImportRequestBody = 5 * 1024 * 1024

// ImportArchiver stores a copy of the raw upload for later auditing.
type ImportArchiver interface {
	Store(ctx context.Context, importID string, payload []byte) (string, error)
}

// ImportHandlers exposes the CSV import endpoint.
type ImportHandlers struct {
	imports services.ImportService
	archive ImportArchiver
	logger  func(context.Context, string, map[string]any)
}

// ImportHandlerOption customises an ImportHandlers instance.
type ImportHandlerOption func(*ImportHandlers)

// WithImportArchiver stores raw uploads through the provided archiver.
func WithImportArchiver(archive ImportArchiver) ImportHandlerOption {
	return func(h *ImportHandlers) {
		h.archive = archive
	}
}

// WithImportLogger emits structured handler events through the provided logger.
func WithImportLogger(logger func(context.Context, string, map[string]any)) ImportHandlerOption {
	return func(h *ImportHandlers) {
		h.logger = logger
	}
}

// NewImportHandlers constructs an import handler set.
func NewImportHandlers(svc services.ImportService, opts ...ImportHandlerOption) *ImportHandlers {
	h := &ImportHandlers{imports: svc}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.logger == nil {
		h.logger = func(context.Context, string, map[string]any) {}
	}
	return h
}

// Routes registers the import endpoints.
func (h *ImportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/imports", h.importVisits)
}

func (h *ImportHandlers) importVisits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.imports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "import service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxImportRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	parsed, err := csvio.ParseRows(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_csv", err.Error(), http.StatusBadRequest))
		return
	}
	if len(parsed.Rows) == 0 {
		payload := httpx.NewError("invalid_csv", "no importable rows found", http.StatusBadRequest)
		if len(parsed.Errors) > 0 {
			rowErrors := make([]map[string]any, 0, len(parsed.Errors))
			for _, parseErr := range parsed.Errors {
				rowErrors = append(rowErrors, map[string]any{"row": parseErr.Row, "reason": parseErr.Reason})
			}
			payload = payload.WithDetails(map[string]any{"rowErrors": rowErrors})
		}
		httpx.WriteError(ctx, w, payload)
		return
	}

	summary, err := h.imports.ImportVisits(ctx, services.ImportCommand{Rows: parsed.Rows})
	if err != nil {
		writeImportError(ctx, w, err)
		return
	}

	if h.archive != nil {
		if key, archiveErr := h.archive.Store(ctx, summary.ImportID, body); archiveErr != nil {
			h.logger(ctx, "import.archive_failed", map[string]any{
				"import_id": summary.ImportID,
				"error":     archiveErr.Error(),
			})
		} else {
			h.logger(ctx, "import.archived", map[string]any{
				"import_id": summary.ImportID,
				"object":    key,
			})
		}
	}

	writeJSONResponse(w, http.StatusOK, buildImportSummaryPayload(summary, parsed.Errors))
}

func writeImportError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrImportInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "import rows are invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrImportUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "import backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to import visits", http.StatusInternalServerError))
	}
}

type importSummaryResponse struct {
	ImportID     string               `json:"importId"`
	Total        int                  `json:"total"`
	Imported     int                  `json:"imported"`
	Rejected     int                  `json:"rejected"`
	ManualReview int                  `json:"manualReview"`
	RowErrors    []importRowError     `json:"rowErrors,omitempty"`
	Batches      []importBatchPayload `json:"batches,omitempty"`
	StartedAt    string               `json:"startedAt,omitempty"`
	CompletedAt  string               `json:"completedAt,omitempty"`
}

type importRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importBatchPayload struct {
	Batch    int    `json:"batch"`
	Size     int    `json:"size"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

func buildImportSummaryPayload(summary services.ImportSummary, parseErrors []csvio.ParseError) importSummaryResponse {
	resp := importSummaryResponse{
		ImportID:     summary.ImportID,
		Total:        summary.Total + len(parseErrors),
		Imported:     summary.Imported,
		Rejected:     summary.Rejected + len(parseErrors),
		ManualReview: summary.ManualReview,
		StartedAt:    formatTimestamp(summary.StartedAt),
		CompletedAt:  formatTimestamp(summary.CompletedAt),
	}
	for _, parseErr := range parseErrors {
		resp.RowErrors = append(resp.RowErrors, importRowError{Row: parseErr.Row, Reason: parseErr.Reason})
	}
	for _, rowErr := range summary.RowErrors {
		resp.RowErrors = append(resp.RowErrors, importRowError{Row: rowErr.Row, Reason: rowErr.Reason})
	}
	for _, batch := range summary.Batches {
		resp.Batches = append(resp.Batches, importBatchPayload{
			Batch:    batch.Batch,
			Size:     batch.Size,
			Inserted: batch.Inserted,
			Error:    batch.Err,
		})
	}
	return resp
}
