package agreement

// Protocol is the replication session engine driving one agreement. The
// engine is an external collaborator: the agreement owns at most one live
// Protocol at a time and only ever moves the handle under its lock, never
// shares the worker's internals.
//
// Notification entry points must never be invoked while holding the
// agreement lock; the engine has locking of its own and the combined order
// would invert.
type Protocol interface {
	// Start launches the session worker.
	Start()
	// Stop terminates the session, blocking until in-flight work has
	// quiesced.
	Stop()
	// NotifyAgreementChanged signals that agreement configuration changed.
	NotifyAgreementChanged(longName string)
	// NotifyWindowOpened signals that the update window opened.
	NotifyWindowOpened()
	// NotifyWindowClosed signals that the update window closed.
	NotifyWindowClosed()
	// Conn returns the live connection to the consumer, or nil before
	// first contact.
	Conn() Conn
}

// Conn is the slice of the consumer connection the agreement needs: the
// read primitive used to refresh the consumer's replica identity.
type Conn interface {
	ReadEntryAttribute(dn, attr string) ([]string, error)
}

// ProtocolFactory builds a session for an agreement in the given initial
// transfer mode. Construction may fail before any state is installed on
// the agreement.
type ProtocolFactory func(a *Agreement, state InitState) (Protocol, error)
