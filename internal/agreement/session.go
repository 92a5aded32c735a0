package agreement

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
)

// Session IDs let log lines from a supplier session be correlated with the
// consumer's logs. The prefix is stable for the lifetime of the agreement;
// the counter distinguishes consecutive sessions and wraps at 999.
const sessionIDPrefixLen = 11

func (a *Agreement) initSessionID() {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s%s%d%d",
		a.replArea, a.deps.LocalHost, a.deps.LocalPort, a.deps.LocalSecurePort)))
	prefix := base64.StdEncoding.EncodeToString(sum[:])
	if len(prefix) > sessionIDPrefixLen {
		prefix = prefix[:sessionIDPrefixLen]
	}
	a.sessionIDPrefix = prefix
	a.sessionIDCnt = 1
}

// NextSessionID advances the session counter and returns the new session
// ID. A replication session calls this once when it begins.
func (a *Agreement) NextSessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessionIDCnt > 999 {
		a.sessionIDCnt = 1
	}
	a.sessionID = fmt.Sprintf("%s %3d", a.sessionIDPrefix, a.sessionIDCnt)
	a.sessionIDCnt++
	return a.sessionID
}

// SessionID returns the current session ID, empty before the first session.
func (a *Agreement) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}
