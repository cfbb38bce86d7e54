package patch

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by ApplyHTML when a newer diff or a full reload
// started while it was fetching. Nothing was mutated.
var ErrSuperseded = errors.New("patch: superseded by a newer request")

// ErrFallback reports that a patch could not be applied and a full reload
// was issued instead. The reload itself succeeded.
type ErrFallback struct {
	Reason string
	Cause  error
}

func (e *ErrFallback) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("patch: fell back to reload (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("patch: fell back to reload (%s)", e.Reason)
}

func (e *ErrFallback) Unwrap() error { return e.Cause }

// Fallback reasons.
const (
	ReasonMissingPath = "missing path"
	ReasonFetch       = "fetch failed"
	ReasonMerge       = "merge failed"
	ReasonNoStyle     = "no matching stylesheet"
	ReasonDocument    = "document unavailable"
)
