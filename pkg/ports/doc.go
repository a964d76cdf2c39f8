/*
Package ports defines the driven ports (interfaces) of the mobility control layer.

These interfaces decouple the engine and the replication protocol from the
fact store, the durable storage backend, the inter-agent transport and the
identity service.

# Key Interfaces

  - Blackboard: the per-agent fact store with publish primitives and typed notifications.
  - FactRepository: durable storage the blackboard writes through to and rehydrates from.
  - Messenger: at-least-once envelope delivery between agents.
  - DistributedLocker: keeps a single engine instance per agent across processes.
  - IDIssuer: per-agent unique, increasing identifiers.
*/
package ports
