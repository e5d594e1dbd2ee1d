package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RosterKind selects which roster collection a name is reconciled against.
type RosterKind string

const (
	RosterKindUser  RosterKind = "user"
	RosterKindStaff RosterKind = "staff"
)

// Valid reports whether the kind is one of the supported roster kinds.
func (k RosterKind) Valid() bool {
	return k == RosterKindUser || k == RosterKindStaff
}

// VisitRecord is a single logged service visit. Records are created by CSV
// import or manual entry and are mutated only when a pattern is linked or
// unlinked; the core never deletes them.
type VisitRecord struct {
	ID             string
	UserName       string
	StaffName      string
	ServiceDate    time.Time
	StartTime      string
	EndTime        string
	ServiceContent string
	PatternID      string
	RecordedAt     time.Time
	PrintedAt      time.Time
	ManualReview   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GroupKey identifies a cluster of visits sharing user and start time.
type GroupKey struct {
	UserName  string
	StartTime string
}

// String renders the key with a separator that cannot occur in names, so
// distinct (user, time) pairs never collide.
func (k GroupKey) String() string {
	return k.UserName + "\x1f" + k.StartTime
}

// VisitGroup is a derived aggregate over visits sharing a GroupKey. It is
// recomputed on demand and never persisted.
type VisitGroup struct {
	Key                  GroupKey
	Records              []VisitRecord
	Count                int
	MainServiceType      string
	SuggestedPatternName string
	IsPatternCreated     bool
}

// VisitPattern is a reusable definition derived from a visit group, used to
// pre-fill recurring visit records and print forms.
type VisitPattern struct {
	ID          string
	Name        string
	UserName    string
	StartTime   string
	EndTime     string
	ServiceType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NameResolutionPattern is a learned mapping from a raw imported spelling to
// a roster name. Patterns are created on high-confidence resolutions, have
// their usage count incremented on reuse, and are never auto-deleted.
type NameResolutionPattern struct {
	ID              string
	OriginalPattern string
	ResolvedName    string
	Kind            RosterKind
	Confidence      float64
	UsageCount      int
	LastUsed        time.Time
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ImportRow is one decoded CSV row from the external scheduling system.
// Rows are validated at the parse boundary; rows missing mandatory fields
// are rejected rather than silently defaulted.
type ImportRow struct {
	UserName       string
	StaffName      string
	ServiceDate    time.Time
	StartTime      string
	EndTime        string
	ServiceContent string
}

// ErrInvalidImportRow wraps field-level validation failures for import rows.
var ErrInvalidImportRow = errors.New("import row: invalid")

// Validate checks the mandatory fields of an imported row.
func (r ImportRow) Validate() error {
	var missing []string
	if strings.TrimSpace(r.UserName) == "" {
		missing = append(missing, "userName")
	}
	if r.ServiceDate.IsZero() {
		missing = append(missing, "serviceDate")
	}
	if !validClockTime(r.StartTime) {
		missing = append(missing, "startTime")
	}
	if r.EndTime != "" && !validClockTime(r.EndTime) {
		missing = append(missing, "endTime")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or malformed fields %s", ErrInvalidImportRow, strings.Join(missing, ", "))
	}
	return nil
}

func validClockTime(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	_, err := time.Parse("15:04", value)
	return err == nil
}
