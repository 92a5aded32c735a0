// Package fractional implements the fractional-replication exclude-list
// grammar and its validation rules. An exclude specification looks like
//
//	(objectclass=*) $ EXCLUDE jpegPhoto telephoneNumber
//
// and names the attributes a consumer must never receive. The process-wide
// default list and the per-agreement list are merged, deduplicating by exact
// name while preserving first-appearance order.
package fractional

import (
	"fmt"
	"strings"
)

const (
	filterPrefix   = "(objectclass=*) "
	excludeKeyword = "$ EXCLUDE "
)

// ParseError reports a malformed exclude specification.
type ParseError struct {
	Spec   string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed exclude specification %q at offset %d: %s", e.Spec, e.Offset, e.Reason)
}

// ParseSpec parses one exclude specification, appending attribute names not
// already present to attrs. The input slice is returned extended so that
// several specifications (the default list, then the per-agreement list)
// merge idempotently with first-appearance order preserved.
func ParseSpec(spec string, attrs []string) ([]string, error) {
	offset := 0
	if !strings.HasPrefix(spec, filterPrefix) {
		return attrs, &ParseError{Spec: spec, Offset: offset, Reason: "missing filter prefix"}
	}
	offset += len(filterPrefix)
	if !strings.HasPrefix(spec[offset:], excludeKeyword) {
		return attrs, &ParseError{Spec: spec, Offset: offset, Reason: "missing EXCLUDE keyword"}
	}
	offset += len(excludeKeyword)

	for offset < len(spec) {
		end := offset
		for end < len(spec) && spec[end] != ' ' {
			end++
		}
		if end == offset {
			// A zero-length token means the list is broken; keep
			// whatever parsed before it.
			break
		}
		name := spec[offset:end]
		if !contains(attrs, name) {
			attrs = append(attrs, name)
		}
		offset = end
		if offset < len(spec) && spec[offset] == ' ' {
			offset++
		}
	}
	return attrs, nil
}

// FormatSpec renders attribute names into the exclude-spec wire form.
// FormatSpec and ParseSpec round-trip for any list of space-free names.
func FormatSpec(attrs []string) string {
	return filterPrefix + excludeKeyword + strings.Join(attrs, " ")
}

// forbiddenAttrs may never be excluded from replication: stripping them
// breaks entry identity and conflict resolution on the consumer. Matching
// is by exact type name.
var forbiddenAttrs = map[string]struct{}{
	"nsuniqueid":       {},
	"modifiersname":    {},
	"lastmodifiedtime": {},
	"dc":               {},
	"o":                {},
	"ou":               {},
	"cn":               {},
	"objectclass":      {},
}

// Validate removes forbidden attributes from attrs, returning the cleaned
// list and the rejected names. The input slice is not modified.
func Validate(attrs []string) (kept, rejected []string) {
	for _, name := range attrs {
		if _, bad := forbiddenAttrs[name]; bad {
			rejected = append(rejected, name)
		} else {
			kept = append(kept, name)
		}
	}
	return kept, rejected
}

// AllExcluded reports whether every modified attribute type is matched by
// excluded. A modify operation whose attributes are all excluded is
// irrelevant to a fractional agreement; add, delete and rename operations
// are always relevant and must not be routed through this test.
func AllExcluded(modTypes []string, excluded func(string) bool) bool {
	if len(modTypes) == 0 {
		return false
	}
	for _, typ := range modTypes {
		if !excluded(typ) {
			return false
		}
	}
	return true
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
