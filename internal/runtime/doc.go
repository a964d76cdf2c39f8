// Package runtime advances procs through their scripts.
//
// The Engine is reactive: it never polls and never blocks. It is fed the
// fact store's typed notifications once per agent turn and reacts to
// three things: a proc appearing, the outstanding step of a tracked proc
// changing status, and a script (or proc) being removed. Pause and timeout
// are resolved to absolute timestamps here and enforced by whoever
// executes the step.
package runtime
