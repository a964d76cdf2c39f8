/*
Package mobility runs scripted agent relocations across a set of cooperating agents.

A script is a small program of moves, labels and gotos. Running a script on
an agent creates a proc: the engine walks the script one move at a time,
turning each move into a step with absolute pause and timeout times, and
waits for the step to finish before creating the next one. Any step that
ends in FAILURE or TIMEOUT ends the proc.

Steps and one-shot requests addressed to another agent are replicated to it:
the requesting agent holds the source side, the target agent materializes a
twin, executes it, and streams its status back. Replication is idempotent,
so duplicated or re-sent envelopes converge to the same state.

# Usage

	board := memory.NewBlackboard()
	agent := mobility.New("base",
		mobility.WithBoard(board),
		mobility.WithMessenger(bus),
		mobility.WithObserver(simulate.NewExecutor("base", board)),
	)
	go agent.Run(ctx)

	script, err := agent.CreateScript(ctx, "move rover-1, , +30, rover-1, dock, field, false")
	if err != nil {
		log.Fatal(err)
	}
	proc, err := agent.CreateProc(ctx, script.ID)

# Script format

One command per line; blank lines and lines starting with '#' are skipped.

	label <name>
	goto <name>
	move <actor>, <pause>, <timeout>, <mobile>, <origin>, <destination>, <forceRestart>

Times are "[minutes:]seconds[.millis]", optionally prefixed with '@' (from
the proc start), '+' (from now, or from the pause for a timeout) or '^'
(from the previous step's start). An empty time means none.

# Concurrency

An agent is single-threaded: notifications, inbound envelopes and
administrative calls are handled one at a time inside a turn. With a
distributed locker, a turn also holds a lock on the agent so that two
processes never host the same agent.
*/
package mobility
