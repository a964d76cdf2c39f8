/*
Package turn serializes agent turns.

Every mutation of an agent's facts (a notification batch, an inbound
envelope, an admin call) runs inside that agent's turn. Within a process a
keyed mutex provides this; with a distributed locker configured, two
processes hosting the same agent also take turns.
*/
package turn
