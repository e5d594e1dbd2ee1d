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

const visitsCollection = "visits"

type visitDocument struct {
	ID             string    `firestore:"-"`
	UserName       string    `firestore:"userName"`
	StaffName      string    `firestore:"staffName"`
	ServiceDate    time.Time `firestore:"serviceDate"`
	StartTime      string    `firestore:"startTime"`
	EndTime        string    `firestore:"endTime"`
	ServiceContent string    `firestore:"serviceContent"`
	PatternID      string    `firestore:"patternId"`
	RecordedAt     time.Time `firestore:"recordedAt"`
	PrintedAt      time.Time `firestore:"printedAt"`
	ManualReview   bool      `firestore:"manualReview"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// VisitRepository persists visit records in Firestore.
type VisitRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.VisitRecord]
}

var _ repositories.VisitRepository = (*VisitRepository)(nil)

// NewVisitRepository constructs a Firestore-backed visit repository.
func NewVisitRepository(provider *pfirestore.Provider) (*VisitRepository, error) {
	if provider == nil {
		return nil, errors.New("visit repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.VisitRecord) (any, error) {
		return encodeVisitDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.VisitRecord, error) {
		var doc visitDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.VisitRecord{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodeVisitDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.VisitRecord](provider, visitsCollection, encoder, decoder)
	return &VisitRepository{provider: provider, base: base}, nil
}

// List returns visits matching the filter, newest service dates first.
func (r *VisitRepository) List(ctx context.Context, filter repositories.VisitListFilter) ([]domain.VisitRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("visit repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if name := strings.TrimSpace(filter.UserName); name != "" {
			q = q.Where("userName", "==", name)
		}
		if filter.DateFrom != nil {
			q = q.Where("serviceDate", ">=", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			q = q.Where("serviceDate", "<=", *filter.DateTo)
		}
		q = q.OrderBy("serviceDate", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.VisitRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data)
	}
	return records, nil
}

// InsertBatch writes the records atomically. Records must carry IDs.
func (r *VisitRepository) InsertBatch(ctx context.Context, records []domain.VisitRecord) error {
	if r == nil || r.base == nil {
		return errors.New("visit repository not initialised")
	}
	if len(records) == 0 {
		return nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(records))
	for _, record := range records {
		if strings.TrimSpace(record.ID) == "" {
			return errors.New("visit repository: record id is required")
		}
		ref, err := r.base.DocumentRef(ctx, record.ID)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	return pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, record := range records {
			if err := tx.Create(refs[i], encodeVisitDocument(record)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LinkPattern sets the pattern reference on every given visit atomically.
func (r *VisitRepository) LinkPattern(ctx context.Context, visitIDs []string, patternID string, updatedAt time.Time) error {
	return r.updatePatternRef(ctx, visitIDs, patternID, updatedAt)
}

// UnlinkPattern clears the pattern reference on every given visit atomically.
func (r *VisitRepository) UnlinkPattern(ctx context.Context, visitIDs []string, updatedAt time.Time) error {
	return r.updatePatternRef(ctx, visitIDs, "", updatedAt)
}

func (r *VisitRepository) updatePatternRef(ctx context.Context, visitIDs []string, patternID string, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("visit repository not initialised")
	}
	if len(visitIDs) == 0 {
		return errors.New("visit repository: visit ids are required")
	}

	refs := make([]*firestore.DocumentRef, 0, len(visitIDs))
	for _, id := range visitIDs {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "patternId", Value: patternID},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	}
	return pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, ref := range refs {
			if _, err := tx.Get(ref); err != nil {
				return err
			}
		}
		for _, ref := range refs {
			if err := tx.Update(ref, updates); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeVisitDocument(record domain.VisitRecord) visitDocument {
	return visitDocument{
		UserName:       strings.TrimSpace(record.UserName),
		StaffName:      strings.TrimSpace(record.StaffName),
		ServiceDate:    record.ServiceDate.UTC(),
		StartTime:      strings.TrimSpace(record.StartTime),
		EndTime:        strings.TrimSpace(record.EndTime),
		ServiceContent: record.ServiceContent,
		PatternID:      strings.TrimSpace(record.PatternID),
		RecordedAt:     record.RecordedAt.UTC(),
		PrintedAt:      record.PrintedAt.UTC(),
		ManualReview:   record.ManualReview,
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
}

func decodeVisitDocument(doc visitDocument) domain.VisitRecord {
	return domain.VisitRecord{
		ID:             doc.ID,
		UserName:       doc.UserName,
		StaffName:      doc.StaffName,
		ServiceDate:    doc.ServiceDate,
		StartTime:      doc.StartTime,
		EndTime:        doc.EndTime,
		ServiceContent: doc.ServiceContent,
		PatternID:      doc.PatternID,
		RecordedAt:     doc.RecordedAt,
		PrintedAt:      doc.PrintedAt,
		ManualReview:   doc.ManualReview,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
