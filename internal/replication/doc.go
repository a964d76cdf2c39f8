// Package replication implements the replicated-request protocol.
//
// A request lives as a Source fact on the requesting agent and as a Target
// twin on every agent it addresses. The Source pushes its immutable content;
// the Target answers with its current response. Both sides are idempotent,
// so re-delivering any envelope any number of times converges on the same
// state. Requests whose target is the requesting agent itself never leave
// the fact store.
package replication
