// Package fingerprint implements the fingerprint command.
package fingerprint

import (
	"bytes"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/rowsync/cmd/application"
	"github.com/agentstation/rowsync/internal/cmd/output"
	"github.com/agentstation/rowsync/pkg/errors"
	fp "github.com/agentstation/rowsync/pkg/fingerprint"
	"github.com/agentstation/rowsync/pkg/record"
)

// Line is the fingerprint of one record.
type Line struct {
	Index       int    `json:"index"               yaml:"index"`
	Fingerprint string `json:"fingerprint"         yaml:"fingerprint"`
	Canonical   string `json:"canonical,omitempty" yaml:"canonical,omitempty"`
}

// NewCommand creates the fingerprint command.
func NewCommand(app application.Application) *cobra.Command {
	var (
		canonical bool
		exclude   []string
	)

	cmd := &cobra.Command{
		Use:     "fingerprint [file]",
		GroupID: "management",
		Short:   "Print fingerprints of JSON records",
		Long: `Fingerprint reads a JSON object or an array of objects from file (or stdin)
and prints the fingerprint of each record, the same value a sync job stores
in its fingerprint field.`,
		Example: `  rowsync fingerprint products.json --exclude hash
  echo '{"code":"A1","cost":10}' | rowsync fingerprint --canonical`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return errors.WrapIO("open", args[0], err)
				}
				defer func() { _ = file.Close() }()
				in = file
			}

			lines, err := Compute(in, canonical, exclude...)
			if err != nil {
				return err
			}
			formatter := output.NewFormatter(output.DetectFormat(app.OutputFormat()))
			return formatter.Format(cmd.OutOrStdout(), lines)
		},
	}
	cmd.Flags().BoolVar(&canonical, "canonical", false, "also print the serialization that is hashed")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "fields to leave out, such as the stored fingerprint")
	return cmd
}

// Compute fingerprints every record read from r, which holds one JSON
// object or an array of them.
func Compute(r io.Reader, canonical bool, exclude ...string) ([]Line, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapIO("read", "input", err)
	}
	raw = bytes.TrimSpace(raw)

	var records []record.Record
	if bytes.HasPrefix(raw, []byte("{")) {
		rec, err := record.DecodeObject(raw)
		if err != nil {
			return nil, err
		}
		records = []record.Record{rec}
	} else if records, err = record.Decode(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(records))
	for i, rec := range records {
		rec = rec.Without(exclude...)
		line := Line{Index: i, Fingerprint: fp.Of(rec)}
		if canonical {
			if line.Canonical, err = fp.Canonical(rec); err != nil {
				return nil, err
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}
