package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kaigo-note/api/internal/domain"
	"github.com/kaigo-note/api/internal/platform/httpx"
	"github.com/kaigo-note/api/internal/services"
)

const maxPatternRequestBody = 64 * 1024

// PatternHandlers exposes visit pattern management endpoints.
type PatternHandlers struct {
	patterns services.VisitGroupService
}

// NewPatternHandlers constructs a pattern handler set.
func NewPatternHandlers(svc services.VisitGroupService) *PatternHandlers {
	return &PatternHandlers{patterns: svc}
}

// Routes registers the pattern endpoints.
func (h *PatternHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/patterns", h.listPatterns)
	r.Post("/patterns", h.createPattern)
	r.Post("/patterns/{patternId}:link", h.linkPattern)
	r.Post("/patterns:unlink", h.unlinkPattern)
}

func (h *PatternHandlers) listPatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.patterns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pattern service not available", http.StatusServiceUnavailable))
		return
	}

	patterns, err := h.patterns.ListPatterns(ctx)
	if err != nil {
		writePatternError(ctx, w, err)
		return
	}

	payload := patternListResponse{Patterns: make([]patternPayload, 0, len(patterns))}
	for _, pattern := range patterns {
		payload.Patterns = append(payload.Patterns, buildPatternPayload(pattern))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *PatternHandlers) createPattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.patterns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pattern service not available", http.StatusServiceUnavailable))
		return
	}

	var req createPatternRequest
	if !decodePatternRequest(ctx, w, r, &req) {
		return
	}

	pattern, err := h.patterns.CreatePattern(ctx, services.CreatePatternCommand{
		UserName:  req.UserName,
		StartTime: req.StartTime,
		Name:      req.Name,
	})
	if err != nil {
		writePatternError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, patternResponse{Pattern: buildPatternPayload(pattern)})
}

func (h *PatternHandlers) linkPattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.patterns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pattern service not available", http.StatusServiceUnavailable))
		return
	}

	patternID := strings.TrimSpace(chi.URLParam(r, "patternId"))
	if patternID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pattern_id is required", http.StatusBadRequest))
		return
	}

	var req patternMembersRequest
	if !decodePatternRequest(ctx, w, r, &req) {
		return
	}
	if len(req.VisitIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "visitIds are required", http.StatusBadRequest))
		return
	}

	if err := h.patterns.LinkPattern(ctx, services.LinkPatternCommand{
		VisitIDs:  req.VisitIDs,
		PatternID: patternID,
	}); err != nil {
		writePatternError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, patternMembersResponse{Linked: len(req.VisitIDs)})
}

func (h *PatternHandlers) unlinkPattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.patterns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pattern service not available", http.StatusServiceUnavailable))
		return
	}

	var req patternMembersRequest
	if !decodePatternRequest(ctx, w, r, &req) {
		return
	}
	if len(req.VisitIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "visitIds are required", http.StatusBadRequest))
		return
	}

	if err := h.patterns.UnlinkPattern(ctx, req.VisitIDs); err != nil {
		writePatternError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, patternMembersResponse{Unlinked: len(req.VisitIDs)})
}

func decodePatternRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, dest any) bool {
	body, err := readLimitedBody(r, maxPatternRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writePatternError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVisitGroupInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pattern request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrVisitGroupNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "pattern or visit group not found", http.StatusNotFound))
	case errors.Is(err, services.ErrVisitGroupUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pattern backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process pattern request", http.StatusInternalServerError))
	}
}

type createPatternRequest struct {
	UserName  string `json:"userName"`
	StartTime string `json:"startTime"`
	Name      string `json:"name"`
}

type patternMembersRequest struct {
	VisitIDs []string `json:"visitIds"`
}

type patternMembersResponse struct {
	Linked   int `json:"linked,omitempty"`
	Unlinked int `json:"unlinked,omitempty"`
}

type patternResponse struct {
	Pattern patternPayload `json:"pattern"`
}

type patternListResponse struct {
	Patterns []patternPayload `json:"patterns"`
}

type patternPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UserName    string `json:"userName"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime,omitempty"`
	ServiceType string `json:"serviceType,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func buildPatternPayload(pattern domain.VisitPattern) patternPayload {
	return patternPayload{
		ID:          pattern.ID,
		Name:        pattern.Name,
		UserName:    pattern.UserName,
		StartTime:   pattern.StartTime,
		EndTime:     pattern.EndTime,
		ServiceType: pattern.ServiceType,
		CreatedAt:   formatTimestamp(pattern.CreatedAt),
		UpdatedAt:   formatTimestamp(pattern.UpdatedAt),
	}
}
