/*
Package observability exposes an agent's activity as Prometheus metrics.

Metrics plugs into the engine and the replicator through
domain.LifecycleHooks, so neither depends on Prometheus directly.
*/
package observability
