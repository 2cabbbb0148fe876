package diag

import (
	"errors"
	"strings"
)

// Severity is the severity level of a diagnostic.
type Severity string

const (
	// SeverityError marks a diagnostic that fails the call.
	SeverityError Severity = "error"

	// SeverityWarning marks a non-fatal diagnostic.
	SeverityWarning Severity = "warning"
)

// Diagnostic is the wire representation of a warning or error returned to
// the orchestrator alongside a response body.
type Diagnostic struct {
	// Severity is the diagnostic severity.
	Severity Severity `json:"severity"`

	// Summary is a short, one-line description.
	Summary string `json:"summary"`

	// Detail is an optional longer description.
	Detail string `json:"detail,omitempty"`

	// Path is the dotted attribute path the diagnostic refers to, if any.
	Path string `json:"path,omitempty"`
}

// Diagnostics is a list of diagnostics accumulated during a call.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// AddError appends an error diagnostic.
func (ds *Diagnostics) AddError(summary, detail string) {
	*ds = append(*ds, Diagnostic{Severity: SeverityError, Summary: summary, Detail: detail})
}

// AddWarning appends a warning diagnostic.
func (ds *Diagnostics) AddWarning(summary, detail string) {
	*ds = append(*ds, Diagnostic{Severity: SeverityWarning, Summary: summary, Detail: detail})
}

// AddAttributeError appends an error diagnostic scoped to an attribute path.
func (ds *Diagnostics) AddAttributeError(path, summary, detail string) {
	*ds = append(*ds, Diagnostic{Severity: SeverityError, Summary: summary, Detail: detail, Path: path})
}

// RedactedDetail is what remains of a diagnostic detail after redaction.
const RedactedDetail = "(sensitive value redacted)"

// Redact returns a copy in which the detail of every diagnostic whose
// path lands on a sensitive attribute is replaced with RedactedDetail.
// Summaries stay; they name the attribute, the detail carries the value.
// Numeric index segments in the diagnostic path are skipped when
// matching, so "disks.0.key" is redacted by a declared "disks.key".
func (ds Diagnostics) Redact(sensitivePaths []string) Diagnostics {
	if len(ds) == 0 || len(sensitivePaths) == 0 {
		return ds
	}
	out := make(Diagnostics, len(ds))
	copy(out, ds)
	for i := range out {
		if out[i].Path == "" || out[i].Detail == "" {
			continue
		}
		for _, p := range sensitivePaths {
			if pathRefersTo(out[i].Path, p) {
				out[i].Detail = RedactedDetail
				break
			}
		}
	}
	return out
}

func pathRefersTo(path, declared string) bool {
	got := attributeSteps(path)
	want := strings.Split(declared, ".")
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// attributeSteps drops collection-index segments from a dotted path.
func attributeSteps(path string) []string {
	var steps []string
	for _, seg := range strings.Split(path, ".") {
		if isIndexSegment(seg) {
			continue
		}
		steps = append(steps, seg)
	}
	return steps
}

func isIndexSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FromError converts a classified error into a diagnostic. Non-classified
// errors become plain error diagnostics with no path.
func FromError(err error) Diagnostic {
	var e *Error
	if errors.As(err, &e) {
		return Diagnostic{
			Severity: SeverityError,
			Summary:  e.Message,
			Detail:   e.unwrapSuffixDetail(),
			Path:     e.Path,
		}
	}
	return Diagnostic{Severity: SeverityError, Summary: err.Error()}
}

func (e *Error) unwrapSuffixDetail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}
