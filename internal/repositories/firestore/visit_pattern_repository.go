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

const visitPatternsCollection = "visitPatterns"

type visitPatternDocument struct {
	ID          string    `firestore:"-"`
	Name        string    `firestore:"name"`
	UserName    string    `firestore:"userName"`
	StartTime   string    `firestore:"startTime"`
	EndTime     string    `firestore:"endTime"`
	ServiceType string    `firestore:"serviceType"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// VisitPatternRepository persists reusable visit pattern definitions in Firestore.
type VisitPatternRepository struct {
	base *pfirestore.BaseRepository[domain.VisitPattern]
}

var _ repositories.VisitPatternRepository = (*VisitPatternRepository)(nil)

// NewVisitPatternRepository constructs a Firestore-backed visit pattern repository.
func NewVisitPatternRepository(provider *pfirestore.Provider) (*VisitPatternRepository, error) {
	if provider == nil {
		return nil, errors.New("visit pattern repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.VisitPattern) (any, error) {
		return encodeVisitPatternDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.VisitPattern, error) {
		var doc visitPatternDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.VisitPattern{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodeVisitPatternDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.VisitPattern](provider, visitPatternsCollection, encoder, decoder)
	return &VisitPatternRepository{base: base}, nil
}

// Insert stores a new pattern document.
func (r *VisitPatternRepository) Insert(ctx context.Context, pattern domain.VisitPattern) error {
	if r == nil || r.base == nil {
		return errors.New("visit pattern repository not initialised")
	}
	pattern.ID = strings.TrimSpace(pattern.ID)
	if pattern.ID == "" {
		return errors.New("visit pattern repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, pattern.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeVisitPatternDocument(pattern)); err != nil {
		return pfirestore.WrapError("visit_patterns.insert", err)
	}
	return nil
}

// FindByID loads a pattern by its identifier.
func (r *VisitPatternRepository) FindByID(ctx context.Context, patternID string) (domain.VisitPattern, error) {
	if r == nil || r.base == nil {
		return domain.VisitPattern{}, errors.New("visit pattern repository not initialised")
	}
	patternID = strings.TrimSpace(patternID)
	if patternID == "" {
		return domain.VisitPattern{}, errors.New("visit pattern repository: id is required")
	}
	doc, err := r.base.Get(ctx, patternID)
	if err != nil {
		return domain.VisitPattern{}, err
	}
	return doc.Data, nil
}

// List returns every pattern, newest first.
func (r *VisitPatternRepository) List(ctx context.Context) ([]domain.VisitPattern, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("visit pattern repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	patterns := make([]domain.VisitPattern, 0, len(docs))
	for _, doc := range docs {
		patterns = append(patterns, doc.Data)
	}
	return patterns, nil
}

func encodeVisitPatternDocument(pattern domain.VisitPattern) visitPatternDocument {
	return visitPatternDocument{
		Name:        strings.TrimSpace(pattern.Name),
		UserName:    strings.TrimSpace(pattern.UserName),
		StartTime:   strings.TrimSpace(pattern.StartTime),
		EndTime:     strings.TrimSpace(pattern.EndTime),
		ServiceType: strings.TrimSpace(pattern.ServiceType),
		CreatedAt:   pattern.CreatedAt.UTC(),
		UpdatedAt:   pattern.UpdatedAt.UTC(),
	}
}

func decodeVisitPatternDocument(doc visitPatternDocument) domain.VisitPattern {
	return domain.VisitPattern{
		ID:          doc.ID,
		Name:        doc.Name,
		UserName:    doc.UserName,
		StartTime:   doc.StartTime,
		EndTime:     doc.EndTime,
		ServiceType: doc.ServiceType,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
