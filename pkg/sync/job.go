package sync

import (
	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/normalize"
	"github.com/agentstation/rowsync/pkg/sources"
)

// Job describes one reconciliation between sources and a destination table.
type Job struct {
	Name  string
	Table string

	// Sources in priority order. On identity collisions the earlier source wins.
	Sources     []sources.Source
	Destination destinations.Destination
	Mapping     normalize.Mapping

	// IdentityField and FingerprintField are source field names. Both must be mapped.
	IdentityField    string
	FingerprintField string

	Window  *destinations.Window
	Filters map[string]string
}

// Validate checks the job is complete.
func (j Job) Validate() error {
	if err := validateCommon(j.Name, j.Table, j.Sources, j.Destination, j.Window); err != nil {
		return err
	}
	if err := j.Mapping.Validate(); err != nil {
		return err
	}
	if j.IdentityField == "" {
		return &errors.ValidationError{Field: "IdentityField", Message: "is required"}
	}
	if j.FingerprintField == "" {
		return &errors.ValidationError{Field: "FingerprintField", Message: "is required"}
	}
	if j.IdentityField == j.FingerprintField {
		return &errors.ValidationError{
			Field:   "FingerprintField",
			Value:   j.FingerprintField,
			Message: "must differ from the identity field",
		}
	}
	if _, ok := j.Mapping.Label(j.IdentityField); !ok {
		return &errors.ValidationError{
			Field:   "IdentityField",
			Value:   j.IdentityField,
			Message: "is not mapped to a destination field",
		}
	}
	if _, ok := j.Mapping.Label(j.FingerprintField); !ok {
		return &errors.ValidationError{
			Field:   "FingerprintField",
			Value:   j.FingerprintField,
			Message: "is not mapped to a destination field",
		}
	}
	return nil
}

// BackfillJob fills one empty destination field from source values.
type BackfillJob struct {
	Name  string
	Table string

	Sources     []sources.Source
	Destination destinations.Destination

	// IdentityField is the source field matched against IdentityLabel on destination rows.
	IdentityField string
	IdentityLabel string

	// ValueField is the source field copied into TargetLabel.
	ValueField  string
	TargetLabel string
	Kind        normalize.Kind

	Window  *destinations.Window
	Filters map[string]string
}

// Validate checks the backfill job is complete.
func (j BackfillJob) Validate() error {
	if err := validateCommon(j.Name, j.Table, j.Sources, j.Destination, j.Window); err != nil {
		return err
	}
	required := []struct{ field, value string }{
		{"IdentityField", j.IdentityField},
		{"IdentityLabel", j.IdentityLabel},
		{"ValueField", j.ValueField},
		{"TargetLabel", j.TargetLabel},
	}
	for _, r := range required {
		if r.value == "" {
			return &errors.ValidationError{Field: r.field, Message: "is required"}
		}
	}
	if j.IdentityLabel == j.TargetLabel {
		return &errors.ValidationError{
			Field:   "TargetLabel",
			Value:   j.TargetLabel,
			Message: "must differ from the identity label",
		}
	}
	return nil
}

func validateCommon(name, table string, srcs []sources.Source, dest destinations.Destination, window *destinations.Window) error {
	if name == "" {
		return &errors.ValidationError{Field: "Name", Message: "is required"}
	}
	if table == "" {
		return &errors.ValidationError{Field: "Table", Message: "is required"}
	}
	if len(srcs) == 0 {
		return &errors.ValidationError{Field: "Sources", Message: "at least one source is required"}
	}
	for i, src := range srcs {
		if src == nil {
			return &errors.ValidationError{Field: "Sources", Value: i, Message: "source is nil"}
		}
	}
	if dest == nil {
		return &errors.ValidationError{Field: "Destination", Message: "is required"}
	}
	if window != nil {
		return window.Validate()
	}
	return nil
}
