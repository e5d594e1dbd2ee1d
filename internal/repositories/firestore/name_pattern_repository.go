package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kaigo-note/api/internal/domain"
	pfirestore "github.com/kaigo-note/api/internal/platform/firestore"
	"github.com/kaigo-note/api/internal/repositories"
)

const namePatternsCollection = "namePatterns"

type namePatternDocument struct {
	ID              string    `firestore:"-"`
	OriginalPattern string    `firestore:"originalPattern"`
	ResolvedName    string    `firestore:"resolvedName"`
	Kind            string    `firestore:"kind"`
	Confidence      float64   `firestore:"confidence"`
	UsageCount      int       `firestore:"usageCount"`
	LastUsed        time.Time `firestore:"lastUsed"`
	IsActive        bool      `firestore:"isActive"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// NamePatternRepository persists learned name-resolution patterns in Firestore.
type NamePatternRepository struct {
	base *pfirestore.BaseRepository[domain.NameResolutionPattern]
}

var _ repositories.NamePatternRepository = (*NamePatternRepository)(nil)

// NewNamePatternRepository constructs a Firestore-backed name pattern repository.
func NewNamePatternRepository(provider *pfirestore.Provider) (*NamePatternRepository, error) {
	if provider == nil {
		return nil, errors.New("name pattern repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.NameResolutionPattern) (any, error) {
		return encodeNamePatternDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.NameResolutionPattern, error) {
		var doc namePatternDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.NameResolutionPattern{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodeNamePatternDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.NameResolutionPattern](provider, namePatternsCollection, encoder, decoder)
	return &NamePatternRepository{base: base}, nil
}

// ListActive returns the active patterns for one roster kind, most used first.
func (r *NamePatternRepository) ListActive(ctx context.Context, kind domain.RosterKind) ([]domain.NameResolutionPattern, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("name pattern repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("kind", "==", string(kind)).
			Where("isActive", "==", true).
			OrderBy("usageCount", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	patterns := make([]domain.NameResolutionPattern, 0, len(docs))
	for _, doc := range docs {
		patterns = append(patterns, doc.Data)
	}
	return patterns, nil
}

// Insert stores a new learned pattern document.
func (r *NamePatternRepository) Insert(ctx context.Context, pattern domain.NameResolutionPattern) error {
	if r == nil || r.base == nil {
		return errors.New("name pattern repository not initialised")
	}
	pattern.ID = strings.TrimSpace(pattern.ID)
	if pattern.ID == "" {
		return errors.New("name pattern repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, pattern.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeNamePatternDocument(pattern)); err != nil {
		return pfirestore.WrapError("name_patterns.insert", err)
	}
	return nil
}

// IncrementUsage bumps the usage counter and touches the last-used timestamp.
func (r *NamePatternRepository) IncrementUsage(ctx context.Context, patternID string, usedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("name pattern repository not initialised")
	}
	patternID = strings.TrimSpace(patternID)
	if patternID == "" {
		return errors.New("name pattern repository: id is required")
	}

	_, err := r.base.Update(ctx, patternID, []firestore.Update{
		{Path: "usageCount", Value: firestore.Increment(1)},
		{Path: "lastUsed", Value: usedAt.UTC()},
		{Path: "updatedAt", Value: usedAt.UTC()},
	})
	return err
}

func encodeNamePatternDocument(pattern domain.NameResolutionPattern) namePatternDocument {
	return namePatternDocument{
		OriginalPattern: strings.TrimSpace(pattern.OriginalPattern),
		ResolvedName:    strings.TrimSpace(pattern.ResolvedName),
		Kind:            string(pattern.Kind),
		Confidence:      pattern.Confidence,
		UsageCount:      pattern.UsageCount,
		LastUsed:        pattern.LastUsed.UTC(),
		IsActive:        pattern.IsActive,
		CreatedAt:       pattern.CreatedAt.UTC(),
		UpdatedAt:       pattern.UpdatedAt.UTC(),
	}
}

func decodeNamePatternDocument(doc namePatternDocument) domain.NameResolutionPattern {
	return domain.NameResolutionPattern{
		ID:              doc.ID,
		OriginalPattern: doc.OriginalPattern,
		ResolvedName:    doc.ResolvedName,
		Kind:            domain.RosterKind(doc.Kind),
		Confidence:      doc.Confidence,
		UsageCount:      doc.UsageCount,
		LastUsed:        doc.LastUsed,
		IsActive:        doc.IsActive,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}
