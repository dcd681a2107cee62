package model

import (
	"errors"
	"testing"

	crdb "github.com/cockroachdb/errors"
)

func TestJob_RecordError(t *testing.T) {
	job := &Job{}

	job.RecordError(errors.New("report generation timed out"))
	if job.LastError == nil {
		t.Fatal("LastError should not be nil after recording error")
	}
	if *job.LastError != "report generation timed out" {
		t.Errorf("LastError = %s, want 'report generation timed out'", *job.LastError)
	}

	job.RecordError(nil)
	if job.LastError == nil {
		t.Error("RecordError(nil) should keep the previous error")
	}
}

func TestFilters_Validate(t *testing.T) {
	base := Filters{
		AgencyID:    "agency-1",
		ContentName: "c1",
		Modality:    "m1",
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-31",
	}

	tests := []struct {
		name    string
		mutate  func(f *Filters)
		req     Requirement
		missing bool
		wantErr bool
	}{
		{"complete agency report", func(f *Filters) {}, RequireAgency, false, false},
		{"complete modality report", func(f *Filters) { f.AgencyID = "" }, RequireModality, false, false},
		{"missing content name", func(f *Filters) { f.ContentName = "" }, RequireAgency, true, true},
		{"blank content name", func(f *Filters) { f.ContentName = "   " }, RequireAgency, true, true},
		{"missing start date", func(f *Filters) { f.StartDate = "" }, RequireAgency, true, true},
		{"missing end date", func(f *Filters) { f.EndDate = "" }, RequireModality, true, true},
		{"agency report without agency", func(f *Filters) { f.AgencyID = "" }, RequireAgency, true, true},
		{"modality report without modality", func(f *Filters) { f.Modality = "" }, RequireModality, true, true},
		{"agency report ignores modality", func(f *Filters) { f.Modality = "" }, RequireAgency, false, false},
		{"malformed date", func(f *Filters) { f.StartDate = "01/01/2024" }, RequireAgency, false, true},
		{"end before start", func(f *Filters) { f.EndDate = "2023-12-31" }, RequireAgency, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.mutate(&f)
			err := f.Validate(tt.req)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := crdb.Is(err, ErrMissingRequiredFields); got != tt.missing {
				t.Errorf("Is(ErrMissingRequiredFields) = %v, want %v (err=%v)", got, tt.missing, err)
			}
		})
	}
}

func TestFilters_QueryIsCanonical(t *testing.T) {
	f := Filters{
		Modality:    "m1",
		ContentName: "c1",
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-31",
	}

	want := "contentName=c1&endDate=2024-01-31&modality=m1&startDate=2024-01-01"
	if got := f.Query(); got != want {
		t.Errorf("Query() = %s, want %s", got, want)
	}

	padded := Filters{
		Modality:    " m1 ",
		ContentName: "c1",
		StartDate:   "2024-01-01 ",
		EndDate:     "2024-01-31",
	}
	if padded.Query() != f.Query() {
		t.Errorf("whitespace should not change the query: %s vs %s", padded.Query(), f.Query())
	}
}

func TestKindRegistry(t *testing.T) {
	r := DefaultKinds()

	if !r.Has("pass-rate") {
		t.Error("pass-rate should be registered")
	}
	k, err := r.Get("competency-assignments")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if k.Requires != RequireAgency {
		t.Errorf("Requires = %s, want agency", k.Requires)
	}
	if _, err := r.Get("unknown"); err == nil {
		t.Error("expected error for unknown kind")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "competency-assignments" || names[1] != "pass-rate" {
		t.Errorf("Names() = %v", names)
	}
}

func TestKindRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewKindRegistry()

	tests := []struct {
		name string
		kind Kind
	}{
		{"no name", Kind{Path: "p", Requires: RequireAgency, Filename: "f.csv"}},
		{"no path", Kind{Name: "n", Requires: RequireAgency, Filename: "f.csv"}},
		{"bad requirement", Kind{Name: "n", Path: "p", Requires: "user", Filename: "f.csv"}},
		{"no filename", Kind{Name: "n", Path: "p", Requires: RequireModality}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.kind); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if len(r.Names()) != 0 {
		t.Error("invalid kinds must not be registered")
	}
}
