// Package scope defines the value types for policy access scopes: the
// DENY/WRITE/READ access levels, the "<policy>.<LEVEL>" string form, and the
// set operations (expansion, satisfaction) the permission engine builds on.
package scope

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AccessLevel is the strength of a grant, ordered by restrictiveness:
// DENY is the most restrictive, READ the least. WRITE implies READ for
// satisfaction checks only; the levels remain distinct grants.
type AccessLevel int

const (
	Deny AccessLevel = iota
	Write
	Read
)

var levelNames = map[AccessLevel]string{
	Deny:  "DENY",
	Write: "WRITE",
	Read:  "READ",
}

// ErrInvalidLevel indicates an access level name that is not one of
// DENY, WRITE or READ (matching is case-sensitive).
var ErrInvalidLevel = errors.New("scope: invalid access level")

// ErrMalformed indicates a scope string without a "<policy>.<LEVEL>" shape.
var ErrMalformed = errors.New("scope: malformed scope string")

func (l AccessLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("AccessLevel(%d)", int(l))
}

// ParseLevel resolves an access level name. Names are matched exactly;
// "read" or "Read" are rejected.
func ParseLevel(s string) (AccessLevel, error) {
	for level, name := range levelNames {
		if s == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Levels travel as their names in JSON and in the database.

func (l AccessLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *AccessLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

func (l AccessLevel) Value() (driver.Value, error) {
	return l.String(), nil
}

func (l *AccessLevel) Scan(src any) error {
	switch v := src.(type) {
	case string:
		level, err := ParseLevel(v)
		if err != nil {
			return err
		}
		*l = level
		return nil
	case []byte:
		return l.Scan(string(v))
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidLevel, src)
	}
}

// Scope is a (policy, access level) pair. Policy is the policy name, not its
// row id, because scopes travel as strings on the wire.
type Scope struct {
	Policy string
	Level  AccessLevel
}

func (s Scope) String() string {
	return s.Policy + "." + s.Level.String()
}

// Parse splits a scope string at the last '.' and validates the level
// suffix. Policy existence is checked by callers holding a policy store;
// Parse only guarantees the string is syntactically a scope.
func Parse(raw string) (Scope, error) {
	idx := strings.LastIndex(raw, ".")
	if idx <= 0 || idx == len(raw)-1 {
		return Scope{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	level, err := ParseLevel(raw[idx+1:])
	if err != nil {
		return Scope{}, err
	}
	return Scope{Policy: raw[:idx], Level: level}, nil
}

// ParseAll parses every element, failing on the first invalid one.
func ParseAll(raw []string) ([]Scope, error) {
	out := make([]Scope, 0, len(raw))
	for _, r := range raw {
		s, err := Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Set is an unordered collection of scopes.
type Set map[Scope]struct{}

// NewSet builds a set from the given scopes.
func NewSet(scopes ...Scope) Set {
	set := make(Set, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

func (s Set) Add(sc Scope) {
	s[sc] = struct{}{}
}

func (s Set) Contains(sc Scope) bool {
	_, ok := s[sc]
	return ok
}

// Expand returns the set closed under the WRITE-implies-READ rule: for every
// WRITE scope the same policy at READ is added. Expanding an already-expanded
// set is a no-op. DENY scopes grant nothing and expand to nothing extra.
func (s Set) Expand() Set {
	out := make(Set, len(s))
	for sc := range s {
		out[sc] = struct{}{}
		if sc.Level == Write {
			out[Scope{Policy: sc.Policy, Level: Read}] = struct{}{}
		}
	}
	return out
}

// SubsetOf reports whether every scope in s is present in other. The empty
// set is a subset of everything, including itself.
func (s Set) SubsetOf(other Set) bool {
	for sc := range s {
		if !other.Contains(sc) {
			return false
		}
	}
	return true
}

// Satisfies reports whether the grants in have cover everything in want,
// after expansion: want must be a subset of expand(have).
func Satisfies(have, want Set) bool {
	return want.SubsetOf(have.Expand())
}

// Strings renders the set sorted, for stable wire output and logging.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for sc := range s {
		out = append(out, sc.String())
	}
	sort.Strings(out)
	return out
}
