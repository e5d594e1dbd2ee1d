package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kaigo-note/api/internal/domain"
	"github.com/kaigo-note/api/internal/platform/httpx"
	"github.com/kaigo-note/api/internal/platform/pagination"
	"github.com/kaigo-note/api/internal/services"
)

const (
	maxVisitRequestBody = 256 * 1024
	visitDateLayout     = "2006-01-02"
)

// VisitHandlers exposes visit listing and grouping endpoints.
type VisitHandlers struct {
	visits services.VisitGroupService
}

// NewVisitHandlers constructs a visit handler set.
func NewVisitHandlers(svc services.VisitGroupService) *VisitHandlers {
	return &VisitHandlers{visits: svc}
}

// Routes registers the visit endpoints.
func (h *VisitHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/visits", h.listVisits)
	r.Get("/visits/groups", h.listGroups)
	r.Post("/visits/groups:suggest", h.suggestGroups)
}

func (h *VisitHandlers) listVisits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.visits == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "visit service not available", http.StatusServiceUnavailable))
		return
	}

	filter, err := parseVisitFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	records, err := h.visits.ListVisits(ctx, filter)
	if err != nil {
		writeVisitError(ctx, w, err)
		return
	}

	payload := visitListResponse{Visits: make([]visitPayload, 0, len(records))}
	for _, record := range records {
		payload.Visits = append(payload.Visits, buildVisitPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *VisitHandlers) listGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.visits == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "visit service not available", http.StatusServiceUnavailable))
		return
	}

	filter, err := parseVisitFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	groups, err := h.visits.GroupVisits(ctx, filter)
	if err != nil {
		writeVisitError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildGroupListPayload(groups))
}

func (h *VisitHandlers) suggestGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxVisitRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return
	}

	var req suggestGroupsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if len(req.Records) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "records are required", http.StatusBadRequest))
		return
	}

	records := make([]domain.VisitRecord, 0, len(req.Records))
	for _, item := range req.Records {
		records = append(records, domain.VisitRecord{
			ID:             item.ID,
			UserName:       item.UserName,
			StartTime:      item.StartTime,
			EndTime:        item.EndTime,
			ServiceContent: item.ServiceContent,
			PatternID:      item.PatternID,
		})
	}

	writeJSONResponse(w, http.StatusOK, buildGroupListPayload(services.GroupRecords(records)))
}

func parseVisitFilter(r *http.Request) (services.VisitFilter, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return services.VisitFilter{}, err
	}

	query := r.URL.Query()
	filter := services.VisitFilter{
		UserName: strings.TrimSpace(query.Get("userName")),
		Limit:    params.PageSize,
	}

	if raw := strings.TrimSpace(query.Get("dateFrom")); raw != "" {
		from, err := time.Parse(visitDateLayout, raw)
		if err != nil {
			return services.VisitFilter{}, fmt.Errorf("invalid dateFrom %q", raw)
		}
		filter.DateFrom = &from
	}
	if raw := strings.TrimSpace(query.Get("dateTo")); raw != "" {
		to, err := time.Parse(visitDateLayout, raw)
		if err != nil {
			return services.VisitFilter{}, fmt.Errorf("invalid dateTo %q", raw)
		}
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return services.VisitFilter{}, errors.New("dateTo is before dateFrom")
	}
	return filter, nil
}

func writeVisitError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVisitGroupInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "visit query is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrVisitGroupNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "requested resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrVisitGroupUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "visit backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process visits", http.StatusInternalServerError))
	}
}

type visitListResponse struct {
	Visits []visitPayload `json:"visits"`
}

type visitPayload struct {
	ID             string `json:"id"`
	UserName       string `json:"userName"`
	StaffName      string `json:"staffName,omitempty"`
	ServiceDate    string `json:"serviceDate"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime,omitempty"`
	ServiceContent string `json:"serviceContent,omitempty"`
	PatternID      string `json:"patternId,omitempty"`
	RecordedAt     string `json:"recordedAt,omitempty"`
	PrintedAt      string `json:"printedAt,omitempty"`
	ManualReview   bool   `json:"manualReview,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

type suggestGroupsRequest struct {
	Records []suggestGroupRecord `json:"records"`
}

type suggestGroupRecord struct {
	ID             string `json:"id"`
	UserName       string `json:"userName"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	ServiceContent string `json:"serviceContent"`
	PatternID      string `json:"patternId"`
}

type visitGroupListResponse struct {
	Groups []visitGroupPayload `json:"groups"`
}

type visitGroupPayload struct {
	UserName             string         `json:"userName"`
	StartTime            string         `json:"startTime"`
	Count                int            `json:"count"`
	MainServiceType      string         `json:"mainServiceType"`
	SuggestedPatternName string         `json:"suggestedPatternName"`
	IsPatternCreated     bool           `json:"isPatternCreated"`
	Records              []visitPayload `json:"records"`
}

func buildVisitPayload(record domain.VisitRecord) visitPayload {
	payload := visitPayload{
		ID:             record.ID,
		UserName:       record.UserName,
		StaffName:      record.StaffName,
		StartTime:      record.StartTime,
		EndTime:        record.EndTime,
		ServiceContent: record.ServiceContent,
		PatternID:      record.PatternID,
		ManualReview:   record.ManualReview,
		RecordedAt:     formatTimestamp(record.RecordedAt),
		PrintedAt:      formatTimestamp(record.PrintedAt),
		CreatedAt:      formatTimestamp(record.CreatedAt),
		UpdatedAt:      formatTimestamp(record.UpdatedAt),
	}
	if !record.ServiceDate.IsZero() {
		payload.ServiceDate = record.ServiceDate.Format(visitDateLayout)
	}
	return payload
}

func buildGroupListPayload(groups []domain.VisitGroup) visitGroupListResponse {
	resp := visitGroupListResponse{Groups: make([]visitGroupPayload, 0, len(groups))}
	for _, group := range groups {
		payload := visitGroupPayload{
			UserName:             group.Key.UserName,
			StartTime:            group.Key.StartTime,
			Count:                group.Count,
			MainServiceType:      group.MainServiceType,
			SuggestedPatternName: group.SuggestedPatternName,
			IsPatternCreated:     group.IsPatternCreated,
			Records:              make([]visitPayload, 0, len(group.Records)),
		}
		for _, record := range group.Records {
			payload.Records = append(payload.Records, buildVisitPayload(record))
		}
		resp.Groups = append(resp.Groups, payload)
	}
	return resp
}
