// Package list implements the jobs command.
package list

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/rowsync/cmd/application"
	"github.com/agentstation/rowsync/internal/cmd/output"
	"github.com/agentstation/rowsync/internal/jobs"
)

// Entry describes one job in the job file.
type Entry struct {
	Name        string   `json:"name"                  yaml:"name"`
	Mode        string   `json:"mode"                  yaml:"mode"`
	Sources     []string `json:"sources"               yaml:"sources"`
	Destination string   `json:"destination"           yaml:"destination"`
	Table       string   `json:"table"                 yaml:"table"`
	Window      string   `json:"window,omitempty"      yaml:"window,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Entries is a printable job list.
type Entries []Entry

// Table implements output.Tabular.
func (es Entries) Table() output.Data {
	d := output.Data{Headers: []string{"Name", "Mode", "Sources", "Destination", "Table", "Window"}}
	for _, e := range es {
		d.Rows = append(d.Rows, []string{e.Name, e.Mode, strings.Join(e.Sources, ", "), e.Destination, e.Table, e.Window})
	}
	return d
}

// NewEntries lists the jobs of f in file order.
func NewEntries(f *jobs.File) Entries {
	out := make(Entries, 0, len(f.Jobs))
	for _, spec := range f.Jobs {
		e := Entry{
			Name:        spec.Name,
			Mode:        string(spec.EffectiveMode()),
			Sources:     spec.Sources,
			Destination: spec.Destination,
			Table:       spec.Table,
			Description: spec.Description,
		}
		if w := spec.Window; w != nil {
			e.Window = w.Field + " " + w.From + ".." + w.To
		}
		out = append(out, e)
	}
	return out
}

// NewCommand creates the jobs command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "jobs",
		GroupID: "management",
		Short:   "List jobs in the job file",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := app.JobFile()
			if err != nil {
				return err
			}
			formatter := output.NewFormatter(output.DetectFormat(app.OutputFormat()))
			return formatter.Format(cmd.OutOrStdout(), NewEntries(f))
		},
	}
}
