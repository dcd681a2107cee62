package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dipak0000812/credtrack/internal/certificate"
)

// PostgresAssignmentRepository reads assignments from the CMS database.
type PostgresAssignmentRepository struct {
	db *sql.DB
}

// NewPostgresAssignmentRepository creates a repository on db.
func NewPostgresAssignmentRepository(db *sql.DB) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{db: db}
}

// assignmentQuery builds the joined query for one table set. Table and
// column names come from certificate.CompetencyType and are quoted.
func assignmentQuery(t certificate.Tables) string {
	ident := func(parts ...string) string { return pgx.Identifier(parts).Sanitize() }

	return fmt.Sprintf(`
		SELECT
			a.id::text, a.status, a.completion_date, a.expiration_date,
			u.id::text, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, ''),
			COALESCE(ag.name, ''), COALESCE(ag.logo::text, ''),
			COALESCE(c.title, ''), COALESCE(v.version_number::text, '')
		FROM %s a
		JOIN directus_users u ON u.id = a.directus_users_id
		LEFT JOIN agencies ag ON ag.id = a.agency
		JOIN %s c ON c.id = a.%s
		LEFT JOIN %s v ON v.id = a.%s
		WHERE a.id::text = $1
		LIMIT 1
	`,
		ident(t.Assignments),
		ident(t.Content), ident(t.ContentColumn),
		ident(t.Versions), ident(t.VersionColumn),
	)
}

// GetAssignment returns the joined assignment row, or nil if none matches.
func (r *PostgresAssignmentRepository) GetAssignment(ctx context.Context, tables certificate.Tables, id string) (*certificate.Assignment, error) {
	var (
		a          certificate.Assignment
		completion sql.NullTime
		expiration sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, assignmentQuery(tables), id).Scan(
		&a.ID,
		&a.Status,
		&completion,
		&expiration,
		&a.UserID,
		&a.FirstName,
		&a.LastName,
		&a.Email,
		&a.AgencyName,
		&a.AgencyLogo,
		&a.ContentTitle,
		&a.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get assignment %s", id)
	}

	if completion.Valid {
		a.CompletionDate = completion.Time
	}
	if expiration.Valid {
		exp := expiration.Time
		a.ExpirationDate = &exp
	}
	return &a, nil
}
