/*
Package domain contains the core data model of the mobility control layer.

It defines the entities that the proc engine and the replicated-request protocol
exchange through the fact store. The package is kept pure and free of I/O, following
the same hexagonal layout as the rest of the module.

# Key Entities

  - Script: an immutable, parsed sequence of move, label and goto entries.
  - Proc: the mutable run cursor of one script on one agent.
  - Step: one concrete, time-resolved move created while advancing a proc.
  - Request: a one-shot add, control, move, remove or transfer request with a set-once status.
  - Envelope: the wire unit exchanged between agents by the replication layer.
*/
package domain
