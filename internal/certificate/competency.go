package certificate

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownCompetencyType is returned for a competency type without a
// certificate.
var ErrUnknownCompetencyType = errors.New("unknown competency type")

// CompetencyType is a kind of content that produces certificates.
type CompetencyType string

const (
	Exam   CompetencyType = "exam"
	Module CompetencyType = "module"
)

// Tables names the tables an assignment of one competency type is read from.
type Tables struct {
	// Assignments links a user to the content.
	Assignments string

	// Content holds the competency itself.
	Content string

	// ContentColumn is the assignment column referencing Content.
	ContentColumn string

	// Versions holds content versions.
	Versions string

	// VersionColumn is the assignment column referencing Versions.
	VersionColumn string
}

// ParseCompetencyType validates a competency type from a request.
func ParseCompetencyType(s string) (CompetencyType, error) {
	ct := CompetencyType(strings.ToLower(strings.TrimSpace(s)))
	if _, err := ct.Tables(); err != nil {
		return "", err
	}
	return ct, nil
}

// Tables resolves the table set of the competency type.
func (c CompetencyType) Tables() (Tables, error) {
	switch c {
	case Exam:
		return Tables{
			Assignments:   "junction_directus_users_exams",
			Content:       "exams",
			ContentColumn: "exams_id",
			Versions:      "exam_versions",
			VersionColumn: "exam_versions_id",
		}, nil
	case Module:
		return Tables{
			Assignments:   "junction_directus_users_modules",
			Content:       "modules",
			ContentColumn: "modules_id",
			Versions:      "modules_versions",
			VersionColumn: "modules_version",
		}, nil
	default:
		return Tables{}, errors.WithDetailf(ErrUnknownCompetencyType, "type: %q", string(c))
	}
}
