// Package schedule defines the boundary to the update-schedule evaluator.
// The evaluator itself is an external collaborator; this package carries
// only the interface the agreement manager programs against, plus the
// always-open evaluator used when no schedule is configured.
package schedule

import "time"

// WindowHook is fired when the replication window opens (true) or closes
// (false). The agreement forwards these to its live session.
type WindowHook func(opened bool)

// Schedule evaluates an update-schedule specification.
type Schedule interface {
	// Set replaces the schedule specification. An empty spec means
	// always-in-window.
	Set(spec []string) error
	// InWindow reports whether updates may run at t.
	InWindow(t time.Time) bool
	// Destroy releases evaluator resources; the schedule must not be used
	// afterwards.
	Destroy()
}

// Always returns a schedule that is permanently in window. The hook is
// fired once, opened, on creation.
func Always(hook WindowHook) Schedule {
	if hook != nil {
		hook(true)
	}
	return always{}
}

type always struct{}

func (always) Set([]string) error      { return nil }
func (always) InWindow(time.Time) bool { return true }
func (always) Destroy()                {}
