// Package conflict holds the pure parts of write-write conflict handling:
// version-based detection, field-level diffing and the resolution plan for
// each strategy. It performs no I/O.
package conflict

import (
	"errors"
	"reflect"
	"sort"
)

// Strategy names how a detected conflict is settled
type Strategy string

const (
	ServerWins Strategy = "SERVER_WINS"
	ClientWins Strategy = "CLIENT_WINS"
	Merge      Strategy = "MERGE"
	UserChoice Strategy = "USER_CHOICE"
)

var (
	// ErrPendingStrategy is returned when USER_CHOICE is used as a resolution target
	ErrPendingStrategy = errors.New("USER_CHOICE is a pending state, not a resolution")
	// ErrUnknownStrategy is returned for strategy names outside the known set
	ErrUnknownStrategy = errors.New("unknown conflict resolution strategy")
	// ErrMissingEdit is returned when a field is marked Edited without an edited value
	ErrMissingEdit = errors.New("field marked as edited has no edited value")
)

// Valid reports whether s is one of the known strategies
func (s Strategy) Valid() bool {
	switch s {
	case ServerWins, ClientWins, Merge, UserChoice:
		return true
	}
	return false
}

// Automatic reports whether s can be applied without a human decision
func (s Strategy) Automatic() bool {
	return s.Valid() && s != UserChoice
}

// Detect is the single canonical detection rule: a conflict exists only when a
// version marker was recorded at enqueue time and it no longer matches the
// server's version. A document the server no longer has counts as version "".
func Detect(originalVersion, serverVersion string) bool {
	return originalVersion != "" && originalVersion != serverVersion
}

// ConflictingFields returns, sorted, the keys present on both sides whose
// values differ. Keys present on one side only are not conflicting.
func ConflictingFields(server, client map[string]any) []string {
	var fields []string
	for k, cv := range client {
		sv, ok := server[k]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(sv, cv) {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// Choice selects where a merged field's value comes from
type Choice int

const (
	FromClient Choice = iota
	FromServer
	Edited
)

func (c Choice) String() string {
	switch c {
	case FromServer:
		return "server"
	case Edited:
		return "edited"
	default:
		return "client"
	}
}

// AutoMerge returns the union of both sides; the client value wins on overlap.
func AutoMerge(server, client map[string]any) map[string]any {
	out := make(map[string]any, len(server)+len(client))
	for k, v := range server {
		out[k] = v
	}
	for k, v := range client {
		out[k] = v
	}
	return out
}

// MergeFields builds a merged object. Fields without an explicit choice follow
// AutoMerge. A FromServer or FromClient choice for a field absent on that side
// drops the field.
func MergeFields(server, client map[string]any, choices map[string]Choice, edited map[string]any) (map[string]any, error) {
	out := AutoMerge(server, client)
	for field, choice := range choices {
		switch choice {
		case FromServer:
			if v, ok := server[field]; ok {
				out[field] = v
			} else {
				delete(out, field)
			}
		case FromClient:
			if v, ok := client[field]; ok {
				out[field] = v
			} else {
				delete(out, field)
			}
		case Edited:
			v, ok := edited[field]
			if !ok {
				return nil, errors.Join(ErrMissingEdit, errors.New("field "+field))
			}
			out[field] = v
		}
	}
	return out, nil
}

// Clone returns a shallow copy of m; nil stays nil
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
