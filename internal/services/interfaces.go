package services

import (
	"context"
	"time"

	domain "github.com/kaigo-note/api/internal/domain"
)

// MatchConfidence buckets a match score into review tiers.
type MatchConfidence string

const (
	MatchConfidenceHigh   MatchConfidence = "high"
	MatchConfidenceMedium MatchConfidence = "medium"
	MatchConfidenceLow    MatchConfidence = "low"
)

// MatchType names the strongest signal that produced a match.
type MatchType string

const (
	MatchTypeExact      MatchType = "exact"
	MatchTypeNormalized MatchType = "normalized"
	MatchTypePhonetic   MatchType = "phonetic"
	MatchTypePartial    MatchType = "partial"
)

// MatchDetails exposes the individual signals behind a combined score.
type MatchDetails struct {
	ExactMatch          bool
	NormalizedMatch     bool
	PhoneticMatch       bool
	PartialMatch        bool
	LevenshteinDistance int
	JaccardSimilarity   float64
}

// MatchResult is the outcome of comparing two names.
type MatchResult struct {
	Score      float64
	IsMatch    bool
	Confidence MatchConfidence
	MatchType  MatchType
	Details    MatchDetails
}

// RankedCandidate pairs a roster name with its match result.
type RankedCandidate struct {
	Name   string
	Result MatchResult
}

// NameResolution reports how a raw imported name was reconciled.
type NameResolution struct {
	Input                string
	Kind                 domain.RosterKind
	Resolved             bool
	ResolvedName         string
	Score                float64
	MatchType            MatchType
	PatternID            string
	LearnedPattern       bool
	RequiresManualReview bool
	Candidates           []RankedCandidate
}

// ResolveNameCommand asks the resolution service to reconcile one raw name.
type ResolveNameCommand struct {
	Raw  string
	Kind domain.RosterKind
}

// NameResolutionService reconciles raw names against the roster and learned patterns.
type NameResolutionService interface {
	Resolve(ctx context.Context, cmd ResolveNameCommand) (NameResolution, error)
}

// VisitGroupService clusters visits and manages pattern suggestions.
type VisitGroupService interface {
	ListVisits(ctx context.Context, filter VisitFilter) ([]domain.VisitRecord, error)
	GroupVisits(ctx context.Context, filter VisitFilter) ([]domain.VisitGroup, error)
	CreatePattern(ctx context.Context, cmd CreatePatternCommand) (domain.VisitPattern, error)
	ListPatterns(ctx context.Context) ([]domain.VisitPattern, error)
	LinkPattern(ctx context.Context, cmd LinkPatternCommand) error
	UnlinkPattern(ctx context.Context, visitIDs []string) error
}

// VisitFilter narrows which visits are listed or grouped.
type VisitFilter struct {
	UserName string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

// CreatePatternCommand creates a reusable pattern from a visit group.
type CreatePatternCommand struct {
	UserName  string
	StartTime string
	Name      string
}

// LinkPatternCommand attaches an existing pattern to a set of visits.
type LinkPatternCommand struct {
	VisitIDs  []string
	PatternID string
}

// ImportCommand carries decoded, untrusted rows from a scheduling-system export.
type ImportCommand struct {
	Rows []domain.ImportRow
}

// RowError reports a rejected input row with its 1-based position.
type RowError struct {
	Row    int
	Reason string
}

// BatchResult is one progress snapshot from a sequential import.
type BatchResult struct {
	Batch    int
	Size     int
	Inserted int
	Err      string
}

// ImportSummary is the synchronous outcome of an import run.
type ImportSummary struct {
	ImportID     string
	Total        int
	Imported     int
	Rejected     int
	ManualReview int
	RowErrors    []RowError
	Batches      []BatchResult
	StartedAt    time.Time
	CompletedAt  time.Time
}

// ImportService ingests rows from the external scheduling system.
type ImportService interface {
	ImportVisits(ctx context.Context, cmd ImportCommand) (ImportSummary, error)
}

// ImportCompletedMessage is published once an import run finishes.
type ImportCompletedMessage struct {
	ImportID     string    `json:"importId"`
	Total        int       `json:"total"`
	Imported     int       `json:"imported"`
	Rejected     int       `json:"rejected"`
	ManualReview int       `json:"manualReview"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
}

// ImportEventPublisher announces finished import runs to downstream consumers.
type ImportEventPublisher interface {
	PublishImportCompleted(ctx context.Context, message ImportCompletedMessage) (string, error)
}
