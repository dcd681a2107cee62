package model

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Requirement names the filter a report flavor needs on top of content
// name and date range.
type Requirement string

const (
	RequireAgency   Requirement = "agency"
	RequireModality Requirement = "modality"
)

// Kind describes one report flavor.
type Kind struct {
	// Name is the report-type tag. It is part of the cache key.
	Name string

	// Path is the endpoint segment under /api/v1/reports/.
	Path string

	// Requires is the extra filter this flavor needs.
	Requires Requirement

	// Headers renames server column headers to internal field names.
	// Headers not in the map pass through unchanged.
	Headers map[string]string

	// Filename is the fixed name used for direct downloads.
	Filename string
}

// Validate checks that the kind can be used to generate reports.
func (k Kind) Validate() error {
	if k.Name == "" {
		return errors.New("report kind name is required")
	}
	if k.Path == "" {
		return errors.Newf("report kind %s: path is required", k.Name)
	}
	switch k.Requires {
	case RequireAgency, RequireModality:
	default:
		return errors.Newf("report kind %s: invalid requirement %q", k.Name, k.Requires)
	}
	if k.Filename == "" {
		return errors.Newf("report kind %s: filename is required", k.Name)
	}
	return nil
}

// KindRegistry maps report-type tags to their kinds.
type KindRegistry struct {
	kinds map[string]Kind
}

// NewKindRegistry creates an empty registry.
func NewKindRegistry() *KindRegistry {
	return &KindRegistry{
		kinds: make(map[string]Kind),
	}
}

// DefaultKinds returns a registry holding the built-in report flavors.
func DefaultKinds() *KindRegistry {
	r := NewKindRegistry()
	_ = r.Register(Kind{
		Name:     "competency-assignments",
		Path:     "competency-assignments",
		Requires: RequireAgency,
		Headers: map[string]string{
			"Competency Title": "title",
			"Competency Type":  "type",
			"Clinician Name":   "clinician",
			"Assigned On":      "assignedOn",
			"Finished On":      "finishedOn",
			"Status":           "status",
			"Score":            "score",
		},
		Filename: "competency-assignments-report.csv",
	})
	_ = r.Register(Kind{
		Name:     "pass-rate",
		Path:     "pass-rate",
		Requires: RequireModality,
		Headers: map[string]string{
			"Competency Title": "title",
			"Agency Name":      "agency",
			"Total Attempts":   "attempts",
			"Passed":           "passed",
			"Failed":           "failed",
			"Pass Rate":        "passRate",
		},
		Filename: "pass-rate-report.csv",
	})
	return r
}

// Register adds a kind, replacing any kind with the same name.
func (r *KindRegistry) Register(k Kind) error {
	if err := k.Validate(); err != nil {
		return err
	}
	r.kinds[k.Name] = k
	return nil
}

// Get retrieves the kind for a report-type tag.
func (r *KindRegistry) Get(name string) (Kind, error) {
	k, exists := r.kinds[name]
	if !exists {
		return Kind{}, errors.Newf("no report kind registered for: %s", name)
	}
	return k, nil
}

// Has checks if a kind is registered.
func (r *KindRegistry) Has(name string) bool {
	_, exists := r.kinds[name]
	return exists
}

// Names returns the registered tags in sorted order.
func (r *KindRegistry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
