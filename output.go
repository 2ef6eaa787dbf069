package autover

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output is one CI output variable
type Output struct {
	Key   string
	Value string
}

// Outputs returns the CI output variables for a computed version, in the
// order CI consumers expect them. prerelease is the version's prerelease
// part, so a prerelease tag given without a channel ("nightly") is reported
// there rather than left empty.
func Outputs(v Version, stats ChangeStats) []Output {
	itoa := strconv.Itoa
	u := func(n uint64) string { return strconv.FormatUint(n, 10) }

	return []Output{
		{"version_str", v.String()},
		{"major", u(v.Major)},
		{"minor", u(v.Minor)},
		{"patch", u(v.Patch)},
		{"prerelease", v.Prerelease},
		{"build_metadata", v.BuildMetadata},
		{"files_changed", itoa(stats.FilesChanged)},
		{"files_added", itoa(stats.FilesAdded)},
		{"files_removed", itoa(stats.FilesRemoved)},
		{"insertions", itoa(stats.Insertions)},
		{"deletions", itoa(stats.Deletions)},
		{"max_percentage", formatPercent(stats.Max())},
		{"min_percentage", formatPercent(stats.Min())},
		{"avg_percentage", formatPercent(stats.Average())},
		{"cumulative_percentage", formatPercent(stats.Cumulative())},
	}
}

// WriteOutputs writes outputs as key=value lines. Nothing is written when any
// value spans more than one line.
func WriteOutputs(w io.Writer, outputs []Output) error {
	if err := validateOutputs(outputs); err != nil {
		return err
	}
	for _, o := range outputs {
		if _, err := fmt.Fprintf(w, "%s=%s\n", o.Key, o.Value); err != nil {
			return err
		}
	}
	return nil
}

func validateOutputs(outputs []Output) error {
	for _, o := range outputs {
		if strings.ContainsAny(o.Value, "\r\n") {
			return fmt.Errorf("output %s: value must be a single line", o.Key)
		}
	}
	return nil
}

// AppendGitHubOutput appends outputs to the file GitHub Actions reads step
// outputs from ($GITHUB_OUTPUT). The file is left untouched when any value is
// invalid.
func AppendGitHubOutput(path string, outputs []Output) error {
	if err := validateOutputs(outputs); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteOutputs(f, outputs); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Report is everything a run found out, for json/yaml output
type Report struct {
	Current    string      `json:"current" yaml:"current"`
	Next       string      `json:"next" yaml:"next"`
	Result     Result      `json:"result" yaml:"result"`
	Stats      ChangeStats `json:"stats" yaml:"stats"`
	Thresholds Thresholds  `json:"thresholds" yaml:"thresholds"`
	Tagged     bool        `json:"tagged" yaml:"tagged"`
}

// WriteReport renders the report as text (the CI output lines), json or yaml
func WriteReport(w io.Writer, format string, r *Report) error {
	switch format {
	case "", "text":
		return WriteOutputs(w, Outputs(r.Result.Version, r.Stats))
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
