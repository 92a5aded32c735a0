package agreement

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopInProgress is returned by configuration mutators while a stop is
// in flight. It marks a no-op, not a failure: the caller raced a teardown
// and lost.
var ErrStopInProgress = errors.New("agreement stop in progress")

// ErrSessionLive is returned by Delete when the session has not been
// stopped first.
var ErrSessionLive = errors.New("agreement session still live")

// ValidationError reports why an agreement specification is malformed. An
// agreement failing validation at creation time is discarded outright.
type ValidationError struct {
	DN      string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("replication agreement %q is malformed: %s", e.DN, strings.Join(e.Reasons, "; "))
}

// ForbiddenAttributeError reports exclude-list attributes that belong to
// the forbidden set. The offending attributes have already been stripped
// from the list; at creation time this error is fatal, on reconfiguration
// the caller decides.
type ForbiddenAttributeError struct {
	Rejected []string
}

func (e *ForbiddenAttributeError) Error() string {
	return fmt.Sprintf("attempt to exclude illegal attributes from a fractional agreement: %s",
		strings.Join(e.Rejected, " "))
}
