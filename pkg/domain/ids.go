package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AgentID names an agent (a node agent is an agent too).
type AgentID string

// NodeID names a hosting node.
type NodeID string

// UID is a globally unique identifier: unique per issuing agent and
// monotonically increasing per issuer. The zero value means "absent".
type UID struct {
	Owner AgentID
	Seq   int64
}

// IsZero reports whether the identifier is absent.
func (u UID) IsZero() bool {
	return u.Owner == "" && u.Seq == 0
}

// Less orders identifiers by owner, then by sequence.
func (u UID) Less(o UID) bool {
	if u.Owner != o.Owner {
		return u.Owner < o.Owner
	}
	return u.Seq < o.Seq
}

// String renders the identifier as "owner/seq". The zero UID renders as "".
func (u UID) String() string {
	if u.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s/%d", u.Owner, u.Seq)
}

// MarshalText implements encoding.TextMarshaler.
func (u UID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UID) UnmarshalText(text []byte) error {
	parsed, err := ParseUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUID parses the "owner/seq" form produced by UID.String.
// The empty string yields the zero UID.
func ParseUID(s string) (UID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return UID{}, nil
	}
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return UID{}, fmt.Errorf("%w: %q", ErrInvalidUID, s)
	}
	seq, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return UID{}, fmt.Errorf("%w: %q", ErrInvalidUID, s)
	}
	return UID{Owner: AgentID(s[:i]), Seq: seq}, nil
}

// SortUIDs sorts ids in place using UID.Less.
func SortUIDs(ids []UID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
