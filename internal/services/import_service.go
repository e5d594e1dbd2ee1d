package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kaigo-note/api/internal/domain"
	"github.com/kaigo-note/api/internal/repositories"
)

var (
	// ErrImportInvalidInput indicates the command carried no usable rows.
	ErrImportInvalidInput = errors.New("import: invalid input")
	// ErrImportUnavailable indicates a persistence dependency failed outright.
	ErrImportUnavailable = errors.New("import: unavailable")

	errImportVisitsRequired      = errors.New("import: visit repository is required")
	errImportResolutionRequired  = errors.New("import: name resolution service is required")
	errImportRecordClockRequired = errors.New("import: record clock is required")
	errImportClockRequired       = errors.New("import: clock is required")
)

const (
	defaultImportBatchSize = 50
	visitIDPrefix          = "visit_"
	importIDPrefix         = "imp_"
)

// ImportServiceDeps wires the collaborators behind the import pipeline.
// Events is optional; a nil publisher skips the completion announcement.
type ImportServiceDeps struct {
	Visits      repositories.VisitRepository
	Resolution  NameResolutionService
	RecordClock *RecordClock
	Events      ImportEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	BatchSize   int
}

type importService struct {
	visits      repositories.VisitRepository
	resolution  NameResolutionService
	recordClock *RecordClock
	events      ImportEventPublisher
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
	batchSize   int
}

// NewImportService constructs an ImportService with the provided dependencies.
func NewImportService(deps ImportServiceDeps) (ImportService, error) {
	if deps.Visits == nil {
		return nil, errImportVisitsRequired
	}
	if deps.Resolution == nil {
		return nil, errImportResolutionRequired
	}
	if deps.RecordClock == nil {
		return nil, errImportRecordClockRequired
	}
	clock := deps.Clock
	if clock == nil {
		return nil, errImportClockRequired
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultImportBatchSize
	}
	return &importService{
		visits:      deps.Visits,
		resolution:  deps.Resolution,
		recordClock: deps.RecordClock,
		events:      deps.Events,
		now:         func() time.Time { return clock().UTC() },
		newID:       func() string { return strings.ToLower(idGen()) },
		logger:      logger,
		batchSize:   batchSize,
	}, nil
}

// ImportVisits validates, resolves and persists the given rows in sequential
// batches. Rejected rows and failed batches are reported in the summary; a
// batch failure does not abort the remaining batches.
func (s *importService) ImportVisits(ctx context.Context, cmd ImportCommand) (ImportSummary, error) {
	if len(cmd.Rows) == 0 {
		return ImportSummary{}, ErrImportInvalidInput
	}

	importID := importIDPrefix + s.newID()
	summary := ImportSummary{
		ImportID:  importID,
		Total:     len(cmd.Rows),
		StartedAt: s.now(),
	}

	records := make([]domain.VisitRecord, 0, len(cmd.Rows))
	for i, row := range cmd.Rows {
		if err := row.Validate(); err != nil {
			summary.Rejected++
			summary.RowErrors = append(summary.RowErrors, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		record, review := s.buildRecord(ctx, row)
		if review {
			summary.ManualReview++
		}
		records = append(records, record)
	}

	for batch := 0; len(records) > 0; batch++ {
		size := s.batchSize
		if size > len(records) {
			size = len(records)
		}
		chunk := records[:size]
		records = records[size:]

		result := BatchResult{Batch: batch + 1, Size: size}
		if err := s.visits.InsertBatch(ctx, chunk); err != nil {
			result.Err = s.translateRepoError(err).Error()
			s.logger(ctx, "import.batch_failed", map[string]any{
				"importId": importID,
				"batch":    result.Batch,
				"error":    err.Error(),
			})
		} else {
			result.Inserted = size
			summary.Imported += size
		}
		summary.Batches = append(summary.Batches, result)
	}

	summary.CompletedAt = s.now()
	s.publishCompleted(ctx, importID, summary)
	return summary, nil
}

// buildRecord resolves both names on a validated row and synthesises the
// record and print timestamps. Unresolved names keep the raw value and flag
// the record for manual review.
func (s *importService) buildRecord(ctx context.Context, row domain.ImportRow) (domain.VisitRecord, bool) {
	review := false
	userName := row.UserName
	if resolution, err := s.resolution.Resolve(ctx, ResolveNameCommand{Raw: row.UserName, Kind: domain.RosterKindUser}); err == nil {
		if resolution.Resolved {
			userName = resolution.ResolvedName
		} else if resolution.RequiresManualReview {
			review = true
		}
	} else {
		review = true
	}

	staffName := row.StaffName
	if strings.TrimSpace(row.StaffName) != "" {
		if resolution, err := s.resolution.Resolve(ctx, ResolveNameCommand{Raw: row.StaffName, Kind: domain.RosterKindStaff}); err == nil {
			if resolution.Resolved {
				staffName = resolution.ResolvedName
			} else if resolution.RequiresManualReview {
				review = true
			}
		} else {
			review = true
		}
	}

	start, end := visitTimes(row)
	now := s.now()
	return domain.VisitRecord{
		ID:             visitIDPrefix + s.newID(),
		UserName:       userName,
		StaffName:      staffName,
		ServiceDate:    row.ServiceDate,
		StartTime:      row.StartTime,
		EndTime:        row.EndTime,
		ServiceContent: row.ServiceContent,
		RecordedAt:     s.recordClock.RecordedAt(start, end),
		PrintedAt:      s.recordClock.PrintedAt(row.ServiceDate),
		ManualReview:   review,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, review
}

// visitTimes combines the service date with the row's clock times. An end
// before the start is treated as crossing midnight. A missing end defaults
// to one hour after the start.
func visitTimes(row domain.ImportRow) (time.Time, time.Time) {
	start := combineClock(row.ServiceDate, row.StartTime)
	if strings.TrimSpace(row.EndTime) == "" {
		return start, start.Add(time.Hour)
	}
	end := combineClock(row.ServiceDate, row.EndTime)
	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end
}

func combineClock(date time.Time, clock string) time.Time {
	parsed, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return date
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, date.Location())
}

func (s *importService) publishCompleted(ctx context.Context, importID string, summary ImportSummary) {
	if s.events == nil {
		return
	}
	message := ImportCompletedMessage{
		ImportID:     importID,
		Total:        summary.Total,
		Imported:     summary.Imported,
		Rejected:     summary.Rejected,
		ManualReview: summary.ManualReview,
		StartedAt:    summary.StartedAt,
		CompletedAt:  summary.CompletedAt,
	}
	if _, err := s.events.PublishImportCompleted(ctx, message); err != nil {
		s.logger(ctx, "import.completed_event_failed", map[string]any{
			"importId": importID,
			"error":    err.Error(),
		})
	}
}

func (s *importService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return ErrImportUnavailable
	}
	return fmt.Errorf("%w: %s", ErrImportUnavailable, err)
}
