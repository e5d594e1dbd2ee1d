package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kaigo-note/api/internal/domain"
	"github.com/kaigo-note/api/internal/repositories"
)

var (
	// ErrNameResolutionInvalidInput indicates the caller provided an unsupported roster kind.
	ErrNameResolutionInvalidInput = errors.New("name_resolution: invalid input")
	// ErrNameResolutionUnavailable indicates a persistence dependency failed.
	ErrNameResolutionUnavailable = errors.New("name_resolution: unavailable")

	errNameResolutionRosterRequired   = errors.New("name_resolution: roster repository is required")
	errNameResolutionPatternsRequired = errors.New("name_resolution: pattern repository is required")
	errNameResolutionClockRequired    = errors.New("name_resolution: clock is required")
)

const (
	// learnConfidenceFloor is the score at which an automatic resolution is
	// trusted enough to become a learned pattern.
	learnConfidenceFloor = 0.9
	// reviewCandidateFloor is the minimum raw score for a near-candidate to
	// be surfaced for manual review.
	reviewCandidateFloor = 0.4
	maxReviewCandidates  = 5
	patternIDPrefix      = "nrp_"
)

// NameResolutionServiceDeps wires the matcher and persistence dependencies.
type NameResolutionServiceDeps struct {
	Roster      repositories.RosterRepository
	Patterns    repositories.NamePatternRepository
	Matcher     *NameMatcher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type nameResolutionService struct {
	roster   repositories.RosterRepository
	patterns repositories.NamePatternRepository
	matcher  *NameMatcher
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewNameResolutionService constructs a NameResolutionService with the provided dependencies.
func NewNameResolutionService(deps NameResolutionServiceDeps) (NameResolutionService, error) {
	if deps.Roster == nil {
		return nil, errNameResolutionRosterRequired
	}
	if deps.Patterns == nil {
		return nil, errNameResolutionPatternsRequired
	}
	clock := deps.Clock
	if clock == nil {
		return nil, errNameResolutionClockRequired
	}
	matcher := deps.Matcher
	if matcher == nil {
		matcher = NewNameMatcher(DefaultMatchThreshold)
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &nameResolutionService{
		roster:   deps.Roster,
		patterns: deps.Patterns,
		matcher:  matcher,
		now:      func() time.Time { return clock().UTC() },
		newID:    func() string { return patternIDPrefix + strings.ToLower(idGen()) },
		logger:   logger,
	}, nil
}

// Resolve reconciles one raw name against learned patterns, then the roster.
// Absent or unresolvable names never fail: callers check Resolved and
// RequiresManualReview.
func (s *nameResolutionService) Resolve(ctx context.Context, cmd ResolveNameCommand) (NameResolution, error) {
	if !cmd.Kind.Valid() {
		return NameResolution{}, ErrNameResolutionInvalidInput
	}

	raw := strings.TrimSpace(cmd.Raw)
	resolution := NameResolution{Input: raw, Kind: cmd.Kind}
	if raw == "" {
		return resolution, nil
	}

	patterns, err := s.patterns.ListActive(ctx, cmd.Kind)
	if err != nil {
		return NameResolution{}, s.translateRepoError(err)
	}
	if hit, ok := matchPattern(patterns, raw); ok {
		if err := s.patterns.IncrementUsage(ctx, hit.ID, s.now()); err != nil {
			s.logger(ctx, "name_resolution.usage_increment_failed", map[string]any{
				"patternId": hit.ID,
				"error":     err.Error(),
			})
		}
		resolution.Resolved = true
		resolution.ResolvedName = hit.ResolvedName
		resolution.Score = hit.Confidence
		resolution.MatchType = MatchTypeExact
		resolution.PatternID = hit.ID
		return resolution, nil
	}

	roster, err := s.roster.ListNames(ctx, cmd.Kind)
	if err != nil {
		return NameResolution{}, s.translateRepoError(err)
	}

	best, ok := s.matcher.FindBestMatch(raw, roster)
	if !ok {
		resolution.RequiresManualReview = true
		candidates := s.matcher.RankCandidates(raw, roster, reviewCandidateFloor)
		if len(candidates) > maxReviewCandidates {
			candidates = candidates[:maxReviewCandidates]
		}
		resolution.Candidates = candidates
		return resolution, nil
	}

	resolution.Resolved = true
	resolution.ResolvedName = best.Name
	resolution.Score = best.Result.Score
	resolution.MatchType = best.Result.MatchType

	if best.Result.Score >= learnConfidenceFloor && raw != best.Name {
		pattern := domain.NameResolutionPattern{
			ID:              s.newID(),
			OriginalPattern: raw,
			ResolvedName:    best.Name,
			Kind:            cmd.Kind,
			Confidence:      best.Result.Score,
			UsageCount:      1,
			LastUsed:        s.now(),
			IsActive:        true,
			CreatedAt:       s.now(),
			UpdatedAt:       s.now(),
		}
		if err := s.patterns.Insert(ctx, pattern); err != nil {
			s.logger(ctx, "name_resolution.pattern_learn_failed", map[string]any{
				"original": raw,
				"error":    err.Error(),
			})
		} else {
			resolution.PatternID = pattern.ID
			resolution.LearnedPattern = true
		}
	}

	return resolution, nil
}

func matchPattern(patterns []domain.NameResolutionPattern, raw string) (domain.NameResolutionPattern, bool) {
	for _, pattern := range patterns {
		if !pattern.IsActive {
			continue
		}
		if pattern.OriginalPattern == raw {
			return pattern, true
		}
	}
	return domain.NameResolutionPattern{}, false
}

func (s *nameResolutionService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrNameResolutionUnavailable
	}
	return ErrNameResolutionUnavailable
}
