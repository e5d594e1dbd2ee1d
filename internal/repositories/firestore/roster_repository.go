package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/kaigo-note/api/internal/domain"
	pfirestore "github.com/kaigo-note/api/internal/platform/firestore"
	"github.com/kaigo-note/api/internal/repositories"
)

const (
	usersCollection = "users"
	staffCollection = "staff"
)

type rosterEntry struct {
	Name     string `firestore:"name"`
	IsActive bool   `firestore:"isActive"`
}

// RosterRepository reads the known user and staff names from Firestore.
type RosterRepository struct {
	users *pfirestore.BaseRepository[rosterEntry]
	staff *pfirestore.BaseRepository[rosterEntry]
}

var _ repositories.RosterRepository = (*RosterRepository)(nil)

// NewRosterRepository constructs a Firestore-backed roster repository.
func NewRosterRepository(provider *pfirestore.Provider) (*RosterRepository, error) {
	if provider == nil {
		return nil, errors.New("roster repository: firestore provider is required")
	}
	return &RosterRepository{
		users: pfirestore.NewBaseRepository[rosterEntry](provider, usersCollection, nil, nil),
		staff: pfirestore.NewBaseRepository[rosterEntry](provider, staffCollection, nil, nil),
	}, nil
}

// ListNames returns the active roster names for the given kind in name order.
func (r *RosterRepository) ListNames(ctx context.Context, kind domain.RosterKind) ([]string, error) {
	if r == nil || r.users == nil || r.staff == nil {
		return nil, errors.New("roster repository not initialised")
	}

	var base *pfirestore.BaseRepository[rosterEntry]
	switch kind {
	case domain.RosterKindUser:
		base = r.users
	case domain.RosterKindStaff:
		base = r.staff
	default:
		return nil, errors.New("roster repository: unsupported roster kind")
	}

	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		if name := strings.TrimSpace(doc.Data.Name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
