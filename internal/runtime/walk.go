package runtime

import (
	"errors"
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
)

// MaxConsecutiveJumps bounds the gotos followed without reaching a move.
// It is a safety valve against label cycles with no move in them.
const MaxConsecutiveJumps = 20

// ErrJumpLimit is returned by Next when MaxConsecutiveJumps is exceeded.
var ErrJumpLimit = errors.New("too many consecutive jumps")

// Next walks forward from the entry after from and returns the index of the
// next move entry, or script.Len() when the script is exhausted, along with
// the number of gotos followed on the way.
func Next(script *domain.Script, from int) (index int, jumps int, err error) {
	i := from + 1
	for i < script.Len() {
		entry := script.Entry(i)
		switch entry.Kind {
		case domain.EntryStep:
			return i, jumps, nil
		case domain.EntryLabel:
			i++
		case domain.EntryGoto:
			jumps++
			if jumps > MaxConsecutiveJumps {
				return from, jumps, fmt.Errorf("%w at line %d", ErrJumpLimit, entry.Line)
			}
			i = entry.Target
		default:
			return from, jumps, fmt.Errorf("entry %d: unknown kind %s", i, entry.Kind)
		}
	}
	return script.Len(), jumps, nil
}
