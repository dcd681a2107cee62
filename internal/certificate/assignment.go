package certificate

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidAssignmentID is returned for an empty or malformed id.
	ErrInvalidAssignmentID = errors.New("invalid assignment id")

	// ErrAssignmentNotFound is returned when no assignment row matches.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrAssignmentIncomplete is returned when the assignment is not
	// finished. No certificate is rendered for it.
	ErrAssignmentIncomplete = errors.New("assignment is not completed")
)

// Assignment statuses that allow a certificate.
const (
	StatusCompleted = "COMPLETED"
	StatusFinished  = "FINISHED"
)

// Ids end up in object keys and file paths.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks an assignment or user id.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.WithDetailf(ErrInvalidAssignmentID, "id: %q", id)
	}
	return nil
}

// Assignment is the joined assignment row a certificate is rendered from.
type Assignment struct {
	ID             string
	Status         string
	CompletionDate time.Time
	ExpirationDate *time.Time

	UserID    string
	FirstName string
	LastName  string
	Email     string

	AgencyName string
	AgencyLogo string // Asset id of the agency logo, empty if none

	ContentTitle string
	Version      string
}

// IsComplete reports whether the assignment may receive a certificate.
// Statuses are matched exactly; the CMS stores them upper case.
func (a *Assignment) IsComplete() bool {
	switch a.Status {
	case StatusCompleted, StatusFinished:
		return true
	default:
		return false
	}
}

// FullName joins first and last name.
func (a *Assignment) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// AssignmentRepository reads assignments.
type AssignmentRepository interface {
	// GetAssignment returns the joined row for id from the given tables.
	// Returns nil if no row matches.
	GetAssignment(ctx context.Context, tables Tables, id string) (*Assignment, error)
}
