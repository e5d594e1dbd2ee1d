package repositories

import (
	"context"
	"time"

	domain "github.com/kaigo-note/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// RosterRepository supplies the known names a raw import name is matched against.
type RosterRepository interface {
	ListNames(ctx context.Context, kind domain.RosterKind) ([]string, error)
}

// NamePatternRepository persists learned name-resolution patterns.
type NamePatternRepository interface {
	ListActive(ctx context.Context, kind domain.RosterKind) ([]domain.NameResolutionPattern, error)
	Insert(ctx context.Context, pattern domain.NameResolutionPattern) error
	IncrementUsage(ctx context.Context, patternID string, usedAt time.Time) error
}

// VisitRepository stores imported and manually entered visit records.
type VisitRepository interface {
	List(ctx context.Context, filter VisitListFilter) ([]domain.VisitRecord, error)
	InsertBatch(ctx context.Context, records []domain.VisitRecord) error
	LinkPattern(ctx context.Context, visitIDs []string, patternID string, updatedAt time.Time) error
	UnlinkPattern(ctx context.Context, visitIDs []string, updatedAt time.Time) error
}

// VisitPatternRepository stores reusable visit pattern definitions.
type VisitPatternRepository interface {
	Insert(ctx context.Context, pattern domain.VisitPattern) error
	FindByID(ctx context.Context, patternID string) (domain.VisitPattern, error)
	List(ctx context.Context) ([]domain.VisitPattern, error)
}

// VisitListFilter narrows visit listings by user and service-date range.
type VisitListFilter struct {
	UserName string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}
