package agreement

import (
	"fmt"
	"strings"
)

// Transport selects how the outbound connection is secured.
type Transport int

const (
	// TransportPlain is unsecured LDAP, the default.
	TransportPlain Transport = iota
	// TransportLDAPS is TLS-implicit LDAP.
	TransportLDAPS
	// TransportStartTLS upgrades a plain connection via StartTLS.
	TransportStartTLS
)

// String returns the configuration spelling of the transport.
func (t Transport) String() string {
	switch t {
	case TransportLDAPS:
		return "LDAPS"
	case TransportStartTLS:
		return "StartTLS"
	default:
		return "LDAP"
	}
}

// Secure reports whether the transport provides TLS, which SSL client
// authentication requires.
func (t Transport) Secure() bool { return t != TransportPlain }

// ParseTransport maps a transport-info value to a Transport. An empty value
// means plain LDAP. The legacy "SSL" and "TLS" spellings are accepted.
func ParseTransport(value string) (Transport, error) {
	switch strings.ToLower(value) {
	case "", "ldap":
		return TransportPlain, nil
	case "ssl", "ldaps":
		return TransportLDAPS, nil
	case "tls", "starttls":
		return TransportStartTLS, nil
	default:
		return TransportPlain, fmt.Errorf("invalid transport info %q", value)
	}
}

// BindMethod selects how the supplier authenticates to the consumer.
type BindMethod int

const (
	// BindSimple is simple bind with DN and password, the default.
	BindSimple BindMethod = iota
	// BindSSLClientAuth authenticates with a client certificate and
	// requires a TLS-capable transport.
	BindSSLClientAuth
	// BindSASLGSSAPI is SASL/GSSAPI.
	BindSASLGSSAPI
	// BindSASLDigestMD5 is SASL/DIGEST-MD5.
	BindSASLDigestMD5
)

// String returns the configuration spelling of the bind method.
func (m BindMethod) String() string {
	switch m {
	case BindSSLClientAuth:
		return "SSLCLIENTAUTH"
	case BindSASLGSSAPI:
		return "SASL/GSSAPI"
	case BindSASLDigestMD5:
		return "SASL/DIGEST-MD5"
	default:
		return "SIMPLE"
	}
}

// NeedsBindIdentity reports whether the method requires a bind DN and
// credential.
func (m BindMethod) NeedsBindIdentity() bool {
	return m != BindSASLGSSAPI && m != BindSSLClientAuth
}

// ParseBindMethod maps a bind-method value to a BindMethod. An empty value
// means SIMPLE.
func ParseBindMethod(value string) (BindMethod, error) {
	switch strings.ToLower(value) {
	case "", "simple":
		return BindSimple, nil
	case "sslclientauth":
		return BindSSLClientAuth, nil
	case "sasl/gssapi":
		return BindSASLGSSAPI, nil
	case "sasl/digest-md5":
		return BindSASLDigestMD5, nil
	default:
		return BindSimple, fmt.Errorf("invalid bind method %q", value)
	}
}

// InitState is the initial transfer mode of a new session.
type InitState int

const (
	// InitIncremental replays changes from the change log.
	InitIncremental InitState = iota
	// InitTotal performs a full resync of the replicated area.
	InitTotal
)

// Variant distinguishes the standard multi-supplier agreement from the
// Windows-interop variant, which the consistency tracker and marker
// persistence skip.
type Variant int

const (
	// VariantMultiSupplier is the standard agreement.
	VariantMultiSupplier Variant = iota
	// VariantWindows is the Windows-interop agreement.
	VariantWindows
)

// IgnoreMissing is the tri-state ignore-missing-change policy.
type IgnoreMissing int64

const (
	// IgnoreMissingNever aborts a session when a change is missing from
	// the change log.
	IgnoreMissingNever IgnoreMissing = 0
	// IgnoreMissingOnce continues past a missing change one time, then
	// resets to never.
	IgnoreMissingOnce IgnoreMissing = 1
	// IgnoreMissingAlways always continues past missing changes.
	IgnoreMissingAlways IgnoreMissing = -1
)

// ParseIgnoreMissing maps an ignore-missing-change value to its tri-state.
func ParseIgnoreMissing(value string) (IgnoreMissing, error) {
	switch strings.ToLower(value) {
	case "off", "never":
		return IgnoreMissingNever, nil
	case "on", "once":
		return IgnoreMissingOnce, nil
	case "always":
		return IgnoreMissingAlways, nil
	default:
		return IgnoreMissingNever, fmt.Errorf("invalid ignore-missing-change value %q", value)
	}
}

// OpType is the kind of captured directory change handed to the
// consistency tracker.
type OpType int

const (
	// OpAdd is an entry addition.
	OpAdd OpType = iota
	// OpModify is an attribute modification.
	OpModify
	// OpDelete is an entry deletion.
	OpDelete
	// OpRename is a rename or move.
	OpRename
)
