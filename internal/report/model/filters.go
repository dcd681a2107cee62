package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrMissingRequiredFields is the user-visible validation error for an
// incomplete filter form. It is returned before any network call.
var ErrMissingRequiredFields = errors.New("missing required fields")

// DateLayout is the wire format of StartDate and EndDate.
const DateLayout = "2006-01-02"

// Query parameter names used by the report generation endpoint.
const (
	ParamAgency      = "agencyId"
	ParamContentName = "contentName"
	ParamModality    = "modality"
	ParamStartDate   = "startDate"
	ParamEndDate     = "endDate"
)

// Filters are the report parameters picked in the filter form.
type Filters struct {
	AgencyID    string
	ContentName string
	Modality    string
	StartDate   string
	EndDate     string
}

// Normalize trims whitespace from every field.
func (f Filters) Normalize() Filters {
	return Filters{
		AgencyID:    strings.TrimSpace(f.AgencyID),
		ContentName: strings.TrimSpace(f.ContentName),
		Modality:    strings.TrimSpace(f.Modality),
		StartDate:   strings.TrimSpace(f.StartDate),
		EndDate:     strings.TrimSpace(f.EndDate),
	}
}

// Validate checks the fields required by the given requirement.
// Missing fields are listed in the error detail; the message stays
// ErrMissingRequiredFields so callers can show it as-is.
func (f Filters) Validate(req Requirement) error {
	f = f.Normalize()

	var missing []string
	if f.ContentName == "" {
		missing = append(missing, ParamContentName)
	}
	if f.StartDate == "" {
		missing = append(missing, ParamStartDate)
	}
	if f.EndDate == "" {
		missing = append(missing, ParamEndDate)
	}
	switch req {
	case RequireAgency:
		if f.AgencyID == "" {
			missing = append(missing, ParamAgency)
		}
	case RequireModality:
		if f.Modality == "" {
			missing = append(missing, ParamModality)
		}
	}
	if len(missing) > 0 {
		return errors.WithDetailf(ErrMissingRequiredFields, "missing: %s", strings.Join(missing, ", "))
	}

	start, err := time.Parse(DateLayout, f.StartDate)
	if err != nil {
		return errors.Wrapf(err, "invalid %s %q", ParamStartDate, f.StartDate)
	}
	end, err := time.Parse(DateLayout, f.EndDate)
	if err != nil {
		return errors.Wrapf(err, "invalid %s %q", ParamEndDate, f.EndDate)
	}
	if end.Before(start) {
		return errors.Newf("%s %s is before %s %s", ParamEndDate, f.EndDate, ParamStartDate, f.StartDate)
	}
	return nil
}

// Values returns the filters as query parameters. Empty fields are omitted.
func (f Filters) Values() url.Values {
	f = f.Normalize()
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set(ParamAgency, f.AgencyID)
	set(ParamContentName, f.ContentName)
	set(ParamModality, f.Modality)
	set(ParamStartDate, f.StartDate)
	set(ParamEndDate, f.EndDate)
	return v
}

// Query is the canonical serialization of the filters. url.Values.Encode
// sorts by key, so the same filters always produce the same string. Both the
// generation request and the cache key use it.
func (f Filters) Query() string {
	return f.Values().Encode()
}
