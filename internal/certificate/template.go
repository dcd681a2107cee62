package certificate

import (
	"embed"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/cockroachdb/errors"
)

//go:embed templates/certificate.html
var templates embed.FS

const defaultTemplate = "templates/certificate.html"

// Template renders certificate HTML with mustache syntax.
type Template struct {
	tmpl *mustache.Template
}

// LoadTemplate parses the template at path, or the built-in template when
// path is empty.
func LoadTemplate(path string) (*Template, error) {
	if path != "" {
		tmpl, err := mustache.ParseFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "parse certificate template %s", path)
		}
		return &Template{tmpl: tmpl}, nil
	}

	data, err := templates.ReadFile(defaultTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "read built-in certificate template")
	}
	return ParseTemplate(string(data))
}

// ParseTemplate parses a template from a string.
func ParseTemplate(src string) (*Template, error) {
	tmpl, err := mustache.ParseString(src)
	if err != nil {
		return nil, errors.Wrap(err, "parse certificate template")
	}
	return &Template{tmpl: tmpl}, nil
}

// Render renders the template with data as context. Values are HTML
// escaped.
func (t *Template) Render(data map[string]any) (string, error) {
	out, err := t.tmpl.Render(data)
	if err != nil {
		return "", errors.Wrap(err, "render certificate template")
	}
	return out, nil
}

// TemplateData builds the template context of an assignment.
// assetURL resolves the agency logo asset id; it may be nil.
func TemplateData(ct CompetencyType, a *Assignment, assetURL func(id string) string) map[string]any {
	logo := ""
	if a.AgencyLogo != "" && assetURL != nil {
		logo = assetURL(a.AgencyLogo)
	}

	return map[string]any{
		"assignment_id":   a.ID,
		"competency_type": string(ct),
		"status":          strings.ToUpper(a.Status),
		"first_name":      a.FirstName,
		"last_name":       a.LastName,
		"full_name":       a.FullName(),
		"email":           a.Email,
		"agency_name":     a.AgencyName,
		"agency_logo_url": logo,
		"content_title":   a.ContentTitle,
		"version":         a.Version,
		"completion_date": FormatDate(a.CompletionDate, 0),
		"expiration_date": FormatExpiration(a.ExpirationDate),
	}
}
