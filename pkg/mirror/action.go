package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/util"
)

// ActionKind identifies the mutation (or deliberate non-mutation) the core
// decided for one entry. Actions are the only mutation requests the core
// issues; execution is delegated to the filesystem provider.
type ActionKind int

const (
	// ActionCreateDir creates a missing replica directory.
	ActionCreateDir ActionKind = iota
	// ActionCopyNew copies a source file with no replica counterpart.
	ActionCopyNew
	// ActionCopyUpdated copies a source file whose replica content differs.
	ActionCopyUpdated
	// ActionSkip records a file whose replica content is already identical.
	ActionSkip
	// ActionDeleteFile removes an orphaned replica file.
	ActionDeleteFile
	// ActionDeleteDir removes an emptied orphan replica directory.
	ActionDeleteDir
)

var actionKindToString = map[ActionKind]string{
	ActionCreateDir:   "create-dir",
	ActionCopyNew:     "copy-new",
	ActionCopyUpdated: "copy-updated",
	ActionSkip:        "skip",
	ActionDeleteFile:  "delete-file",
	ActionDeleteDir:   "delete-dir",
}

var stringToActionKind map[string]ActionKind

func init() {
	stringToActionKind = util.InvertMap(actionKindToString)
}

// String returns the string representation of an ActionKind.
func (k ActionKind) String() string {
	if s, ok := actionKindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown_action(%d)", int(k))
}

// ParseActionKind parses a string and returns the corresponding ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	if k, ok := stringToActionKind[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("invalid action kind: %q", s)
}

// MarshalJSON implements the json.Marshaler interface for ActionKind.
func (k ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ActionKind.
func (k *ActionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ActionKind should be a string, got %s", data)
	}
	parsed, err := ParseActionKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Outcome is the per-entry result record streamed to the reporter.
// Err is nil when the action succeeded (or was a Skip).
type Outcome struct {
	RelPathKey string
	Kind       ActionKind
	Err        error
}

// Reporter consumes the outcome stream. Implementations must tolerate
// concurrent calls; workers report as they go.
type Reporter interface {
	Report(Outcome)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Outcome)

// Report calls f(o).
func (f ReporterFunc) Report(o Outcome) { f(o) }

// logActionNames maps action kinds to the short uppercase tags used in
// per-entry log lines.
var logActionNames = map[ActionKind]string{
	ActionCreateDir:   "DIR",
	ActionCopyNew:     "COPY",
	ActionCopyUpdated: "COPY",
	ActionSkip:        "SKIP",
	ActionDeleteFile:  "DELETE",
	ActionDeleteDir:   "DELETE",
}

// LogReporter writes one NOTICE line per outcome (WARN for failures).
type LogReporter struct {
	// DryRun prefixes every line so no-mutation runs are unmistakable.
	DryRun bool
}

// Report logs a single outcome.
func (r *LogReporter) Report(o Outcome) {
	tag := logActionNames[o.Kind]
	if r.DryRun {
		tag = "[DRY RUN] " + tag
	}
	if o.Err != nil {
		plog.Warn(tag+" failed", "path", o.RelPathKey, "action", o.Kind.String(), "error", o.Err)
		return
	}
	plog.Notice(tag, "path", o.RelPathKey, "action", o.Kind.String())
}
