package domain

import (
	"fmt"
	"strings"
)

// Ticket is the immutable description of a requested agent relocation.
// Empty fields mean "unconstrained".
type Ticket struct {
	ID           string  `json:"id,omitempty"`
	MobileAgent  AgentID `json:"mobile_agent,omitempty"`
	Origin       NodeID  `json:"origin,omitempty"`
	Destination  NodeID  `json:"destination,omitempty"`
	ForceRestart bool    `json:"force_restart,omitempty"`
}

func (t Ticket) String() string {
	var b strings.Builder
	b.WriteString("ticket")
	if t.ID != "" {
		fmt.Fprintf(&b, " %s", t.ID)
	}
	fmt.Fprintf(&b, " (mobile=%s origin=%s dest=%s", orAny(string(t.MobileAgent)), orAny(string(t.Origin)), orAny(string(t.Destination)))
	if t.ForceRestart {
		b.WriteString(" force-restart")
	}
	b.WriteString(")")
	return b.String()
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
