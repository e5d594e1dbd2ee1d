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

const maxNameRequestBody = 16 * 1024

// NameHandlers exposes name matching and resolution endpoints.
type NameHandlers struct {
	matcher    *services.NameMatcher
	resolution services.NameResolutionService
}

// NewNameHandlers constructs a name handler set.
func NewNameHandlers(matcher *services.NameMatcher, resolution services.NameResolutionService) *NameHandlers {
	return &NameHandlers{
		matcher:    matcher,
		resolution: resolution,
	}
}

// Routes registers the name endpoints.
func (h *NameHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/names:match", h.matchNames)
	r.Post("/names:rank", h.rankCandidates)
	r.Post("/names:resolve", h.resolveName)
}

func (h *NameHandlers) matchNames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.matcher == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "name matcher not available", http.StatusServiceUnavailable))
		return
	}

	var req matchNamesRequest
	if !decodeNameRequest(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Candidate) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "name and candidate are required", http.StatusBadRequest))
		return
	}

	result := h.matcher.Match(req.Name, req.Candidate)
	writeJSONResponse(w, http.StatusOK, buildMatchResultPayload(result))
}

func (h *NameHandlers) rankCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.matcher == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "name matcher not available", http.StatusServiceUnavailable))
		return
	}

	var req rankCandidatesRequest
	if !decodeNameRequest(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "name is required", http.StatusBadRequest))
		return
	}
	if len(req.Candidates) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "candidates are required", http.StatusBadRequest))
		return
	}

	ranked := h.matcher.RankCandidates(req.Name, req.Candidates, req.MinScore)
	payload := rankCandidatesResponse{Candidates: make([]rankedCandidatePayload, 0, len(ranked))}
	for _, candidate := range ranked {
		payload.Candidates = append(payload.Candidates, rankedCandidatePayload{
			Name:   candidate.Name,
			Result: buildMatchResultPayload(candidate.Result),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *NameHandlers) resolveName(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.resolution == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "name resolution service not available", http.StatusServiceUnavailable))
		return
	}

	var req resolveNameRequest
	if !decodeNameRequest(ctx, w, r, &req) {
		return
	}
	kind := domain.RosterKind(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = domain.RosterKindUser
	}
	if !kind.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "kind must be user or staff", http.StatusBadRequest))
		return
	}

	resolution, err := h.resolution.Resolve(ctx, services.ResolveNameCommand{Raw: req.Name, Kind: kind})
	if err != nil {
		writeNameError(ctx, w, err)
		return
	}

	payload := nameResolutionResponse{
		Input:                resolution.Input,
		Kind:                 string(resolution.Kind),
		Resolved:             resolution.Resolved,
		ResolvedName:         resolution.ResolvedName,
		Score:                resolution.Score,
		MatchType:            string(resolution.MatchType),
		PatternID:            resolution.PatternID,
		LearnedPattern:       resolution.LearnedPattern,
		RequiresManualReview: resolution.RequiresManualReview,
	}
	for _, candidate := range resolution.Candidates {
		payload.Candidates = append(payload.Candidates, rankedCandidatePayload{
			Name:   candidate.Name,
			Result: buildMatchResultPayload(candidate.Result),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func decodeNameRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, dest any) bool {
	body, err := readLimitedBody(r, maxNameRequestBody)
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

func writeNameError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNameResolutionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "name resolution request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrNameResolutionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "name resolution backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to resolve name", http.StatusInternalServerError))
	}
}

type matchNamesRequest struct {
	Name      string `json:"name"`
	Candidate string `json:"candidate"`
}

type rankCandidatesRequest struct {
	Name       string   `json:"name"`
	Candidates []string `json:"candidates"`
	MinScore   float64  `json:"minScore"`
}

type resolveNameRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type rankCandidatesResponse struct {
	Candidates []rankedCandidatePayload `json:"candidates"`
}

type rankedCandidatePayload struct {
	Name   string             `json:"name"`
	Result matchResultPayload `json:"result"`
}

type nameResolutionResponse struct {
	Input                string                   `json:"input"`
	Kind                 string                   `json:"kind"`
	Resolved             bool                     `json:"resolved"`
	ResolvedName         string                   `json:"resolvedName,omitempty"`
	Score                float64                  `json:"score"`
	MatchType            string                   `json:"matchType,omitempty"`
	PatternID            string                   `json:"patternId,omitempty"`
	LearnedPattern       bool                     `json:"learnedPattern,omitempty"`
	RequiresManualReview bool                     `json:"requiresManualReview,omitempty"`
	Candidates           []rankedCandidatePayload `json:"candidates,omitempty"`
}

type matchResultPayload struct {
	Score      float64            `json:"score"`
	IsMatch    bool               `json:"isMatch"`
	Confidence string             `json:"confidence"`
	MatchType  string             `json:"matchType"`
	Details    matchDetailPayload `json:"details"`
}

type matchDetailPayload struct {
	ExactMatch          bool    `json:"exactMatch"`
	NormalizedMatch     bool    `json:"normalizedMatch"`
	PhoneticMatch       bool    `json:"phoneticMatch"`
	PartialMatch        bool    `json:"partialMatch"`
	LevenshteinDistance int     `json:"levenshteinDistance"`
	JaccardSimilarity   float64 `json:"jaccardSimilarity"`
}

func buildMatchResultPayload(result services.MatchResult) matchResultPayload {
	return matchResultPayload{
		Score:      result.Score,
		IsMatch:    result.IsMatch,
		Confidence: string(result.Confidence),
		MatchType:  string(result.MatchType),
		Details: matchDetailPayload{
			ExactMatch:          result.Details.ExactMatch,
			NormalizedMatch:     result.Details.NormalizedMatch,
			PhoneticMatch:       result.Details.PhoneticMatch,
			PartialMatch:        result.Details.PartialMatch,
			LevenshteinDistance: result.Details.LevenshteinDistance,
			JaccardSimilarity:   result.Details.JaccardSimilarity,
		},
	}
}
