// Package ident issues agent-scoped identifiers.
//
// Every identifier is unique per issuing agent and strictly increasing per
// issuer. After a restart the issuer is re-seeded with Observe from the
// identifiers found in the fact store, the same way a logical clock takes
// max(own, seen) on receipt.
package ident

import (
	"sync"

	"github.com/aretw0/mobility/pkg/domain"
)

// Issuer hands out UIDs owned by one agent. Safe for concurrent use.
type Issuer struct {
	mu    sync.Mutex
	owner domain.AgentID
	seq   int64
}

// NewIssuer creates an issuer for owner starting at sequence 1.
func NewIssuer(owner domain.AgentID) *Issuer {
	return &Issuer{owner: owner}
}

// Owner returns the agent the issuer issues for.
func (i *Issuer) Owner() domain.AgentID { return i.owner }

// Next returns a fresh identifier.
func (i *Issuer) Next() domain.UID {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	return domain.UID{Owner: i.owner, Seq: i.seq}
}

// Observe advances the counter past id when id was issued by this owner.
func (i *Issuer) Observe(id domain.UID) {
	if id.Owner != i.owner {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if id.Seq > i.seq {
		i.seq = id.Seq
	}
}
