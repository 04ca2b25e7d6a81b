package domain

import (
	"maps"
	"strconv"
	"time"
)

// SecretEntry is one cached key-value secret as last fetched from the backend
type SecretEntry struct {
	Path      string
	Fields    map[string]string
	Version   *int64 // nil when the backend reported no version
	FetchedAt time.Time
}

// Clone returns a deep copy so callers never share the Fields map
func (e SecretEntry) Clone() SecretEntry {
	out := e
	out.Fields = maps.Clone(e.Fields)
	if out.Fields == nil {
		out.Fields = map[string]string{}
	}
	if e.Version != nil {
		v := *e.Version
		out.Version = &v
	}
	return out
}

// VersionString renders the version for logs and diagnostics ("N/A" when unknown)
func (e SecretEntry) VersionString() string {
	if e.Version == nil {
		return "N/A"
	}
	return strconv.FormatInt(*e.Version, 10)
}

// MaskedValue replaces every secret field value in logs and diagnostics output
const MaskedValue = "********"

// DisplayFields returns the fields for output, with values masked unless reveal is set
func (e SecretEntry) DisplayFields(reveal bool) map[string]string {
	out := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		if reveal {
			out[k] = v
		} else {
			out[k] = MaskedValue
		}
	}
	return out
}
