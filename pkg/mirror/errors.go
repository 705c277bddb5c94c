package mirror

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKindMismatch is reported when a replica path exists with a different
// kind than its source counterpart (a file where the source has a
// directory, or vice versa). The reconciler fails the entry loudly instead
// of silently deleting the conflicting node; resolving the conflict is the
// operator's decision.
var ErrKindMismatch = errors.New("replica path exists with conflicting kind")

// ReductionStuckError is returned when a reduction pass over the orphan
// directory queue makes no progress: every remaining directory still has
// children. This guards against a provider bug or filesystem race
// reintroducing children; the reducer stops and reports rather than
// looping forever.
type ReductionStuckError struct {
	Stuck []string
}

// Error implements the error interface.
func (e *ReductionStuckError) Error() string {
	return fmt.Sprintf("orphan directory reduction made no progress; %d directories still non-empty: %s",
		len(e.Stuck), strings.Join(e.Stuck, ", "))
}
