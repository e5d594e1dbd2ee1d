package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kaigo-note/api/internal/domain"
	"github.com/kaigo-note/api/internal/repositories"
)

var (
	// ErrVisitGroupInvalidInput indicates the caller provided invalid data.
	ErrVisitGroupInvalidInput = errors.New("visit_group: invalid input")
	// ErrVisitGroupNotFound indicates no visits exist for the requested group.
	ErrVisitGroupNotFound = errors.New("visit_group: not found")
	// ErrVisitGroupUnavailable indicates a persistence dependency failed.
	ErrVisitGroupUnavailable = errors.New("visit_group: unavailable")

	errVisitGroupVisitsRequired   = errors.New("visit_group: visit repository is required")
	errVisitGroupPatternsRequired = errors.New("visit_group: pattern repository is required")
	errVisitGroupClockRequired    = errors.New("visit_group: clock is required")
)

const visitPatternIDPrefix = "vp_"

// serviceCategory pairs a label with the keywords scanned for in the
// free-text service content. Declaration order is the tie-break: an earlier
// category wins on equal hit counts.
type serviceCategory struct {
	label    string
	keywords []string
}

var serviceCategories = []serviceCategory{
	{label: "食事", keywords: []string{"食事", "食介", "配膳"}},
	{label: "入浴", keywords: []string{"入浴", "シャワー"}},
	{label: "排泄", keywords: []string{"排泄", "トイレ", "オムツ"}},
	{label: "清拭", keywords: []string{"清拭"}},
	{label: "服薬", keywords: []string{"服薬", "薬"}},
	{label: "掃除", keywords: []string{"掃除", "清掃"}},
	{label: "洗濯", keywords: []string{"洗濯"}},
	{label: "調理", keywords: []string{"調理", "料理"}},
}

const fallbackServiceType = "その他"

// VisitGroupServiceDeps wires the repositories behind the grouping operations.
type VisitGroupServiceDeps struct {
	Visits      repositories.VisitRepository
	Patterns    repositories.VisitPatternRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type visitGroupService struct {
	visits   repositories.VisitRepository
	patterns repositories.VisitPatternRepository
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewVisitGroupService constructs a VisitGroupService with the provided dependencies.
func NewVisitGroupService(deps VisitGroupServiceDeps) (VisitGroupService, error) {
	if deps.Visits == nil {
		return nil, errVisitGroupVisitsRequired
	}
	if deps.Patterns == nil {
		return nil, errVisitGroupPatternsRequired
	}
	clock := deps.Clock
	if clock == nil {
		return nil, errVisitGroupClockRequired
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &visitGroupService{
		visits:   deps.Visits,
		patterns: deps.Patterns,
		now:      func() time.Time { return clock().UTC() },
		newID:    func() string { return visitPatternIDPrefix + strings.ToLower(idGen()) },
		logger:   logger,
	}, nil
}

// ListVisits returns visits matching the filter without grouping.
func (s *visitGroupService) ListVisits(ctx context.Context, filter VisitFilter) ([]domain.VisitRecord, error) {
	records, err := s.visits.List(ctx, repositoryFilter(filter))
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return records, nil
}

// GroupVisits fetches visits matching the filter and clusters them by
// (user, start time), largest groups first.
func (s *visitGroupService) GroupVisits(ctx context.Context, filter VisitFilter) ([]domain.VisitGroup, error) {
	records, err := s.visits.List(ctx, repositoryFilter(filter))
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return GroupRecords(records), nil
}

// GroupRecords clusters the given visits by (user, start time). Groups are
// keyed on the composite GroupKey, never on a raw string concatenation, so
// distinct pairs cannot merge. Output is sorted by group size descending;
// equal-sized groups keep first-seen order.
func GroupRecords(records []domain.VisitRecord) []domain.VisitGroup {
	index := make(map[domain.GroupKey]int)
	groups := make([]domain.VisitGroup, 0)

	for _, record := range records {
		key := domain.GroupKey{UserName: record.UserName, StartTime: record.StartTime}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, domain.VisitGroup{Key: key})
		}
		groups[pos].Records = append(groups[pos].Records, record)
		groups[pos].Count++
		if record.PatternID != "" {
			groups[pos].IsPatternCreated = true
		}
	}

	for i := range groups {
		groups[i].MainServiceType = mainServiceType(groups[i].Records)
		groups[i].SuggestedPatternName = fmt.Sprintf("%s_%s_%s",
			groups[i].Key.UserName, groups[i].Key.StartTime, groups[i].MainServiceType)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

// mainServiceType scans each record's service content against the ordered
// category list and returns the label with the highest aggregate hit count.
func mainServiceType(records []domain.VisitRecord) string {
	counts := make([]int, len(serviceCategories))
	for _, record := range records {
		for i, category := range serviceCategories {
			for _, keyword := range category.keywords {
				counts[i] += strings.Count(record.ServiceContent, keyword)
			}
		}
	}

	bestIdx := -1
	bestCount := 0
	for i, count := range counts {
		if count > bestCount {
			bestIdx = i
			bestCount = count
		}
	}
	if bestIdx < 0 {
		return fallbackServiceType
	}
	return serviceCategories[bestIdx].label
}

// CreatePattern derives a pattern from the group identified by the command,
// persists it, and links the member visits.
func (s *visitGroupService) CreatePattern(ctx context.Context, cmd CreatePatternCommand) (domain.VisitPattern, error) {
	userName := strings.TrimSpace(cmd.UserName)
	startTime := strings.TrimSpace(cmd.StartTime)
	if userName == "" || startTime == "" {
		return domain.VisitPattern{}, ErrVisitGroupInvalidInput
	}

	records, err := s.visits.List(ctx, repositories.VisitListFilter{UserName: userName})
	if err != nil {
		return domain.VisitPattern{}, s.translateRepoError(err)
	}

	var members []domain.VisitRecord
	for _, record := range records {
		if record.StartTime == startTime {
			members = append(members, record)
		}
	}
	if len(members) == 0 {
		return domain.VisitPattern{}, ErrVisitGroupNotFound
	}

	serviceType := mainServiceType(members)
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = fmt.Sprintf("%s_%s_%s", userName, startTime, serviceType)
	}

	now := s.now()
	pattern := domain.VisitPattern{
		ID:          s.newID(),
		Name:        name,
		UserName:    userName,
		StartTime:   startTime,
		EndTime:     members[0].EndTime,
		ServiceType: serviceType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.patterns.Insert(ctx, pattern); err != nil {
		return domain.VisitPattern{}, s.translateRepoError(err)
	}

	visitIDs := make([]string, 0, len(members))
	for _, member := range members {
		visitIDs = append(visitIDs, member.ID)
	}
	if err := s.visits.LinkPattern(ctx, visitIDs, pattern.ID, now); err != nil {
		return domain.VisitPattern{}, s.translateRepoError(err)
	}

	s.logger(ctx, "visit_group.pattern_created", map[string]any{
		"patternId": pattern.ID,
		"userName":  userName,
		"visits":    len(visitIDs),
	})
	return pattern, nil
}

// ListPatterns returns every stored pattern.
func (s *visitGroupService) ListPatterns(ctx context.Context) ([]domain.VisitPattern, error) {
	patterns, err := s.patterns.List(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return patterns, nil
}

// LinkPattern attaches an existing pattern to the given visits.
func (s *visitGroupService) LinkPattern(ctx context.Context, cmd LinkPatternCommand) error {
	patternID := strings.TrimSpace(cmd.PatternID)
	if patternID == "" || len(cmd.VisitIDs) == 0 {
		return ErrVisitGroupInvalidInput
	}
	if _, err := s.patterns.FindByID(ctx, patternID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return ErrVisitGroupNotFound
		}
		return s.translateRepoError(err)
	}
	if err := s.visits.LinkPattern(ctx, cmd.VisitIDs, patternID, s.now()); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// UnlinkPattern clears the pattern reference from the given visits.
func (s *visitGroupService) UnlinkPattern(ctx context.Context, visitIDs []string) error {
	if len(visitIDs) == 0 {
		return ErrVisitGroupInvalidInput
	}
	if err := s.visits.UnlinkPattern(ctx, visitIDs, s.now()); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func repositoryFilter(filter VisitFilter) repositories.VisitListFilter {
	return repositories.VisitListFilter{
		UserName: strings.TrimSpace(filter.UserName),
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
		Limit:    filter.Limit,
	}
}

func (s *visitGroupService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrVisitGroupNotFound
	}
	return ErrVisitGroupUnavailable
}
