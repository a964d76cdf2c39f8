package domain

import "fmt"

// Completion is a one-way, two-state value: unset (the zero value) or set.
type Completion struct {
	Code   StatusCode `json:"code"`
	Detail string     `json:"detail,omitempty"`
}

// Completed builds a set completion directly.
func Completed(code StatusCode, detail string) Completion {
	return Completion{Code: code, Detail: detail}
}

// IsSet reports whether the completion moved away from NONE.
func (c Completion) IsSet() bool { return c.Code != StatusNoStatus }

// Complete returns the set form of c. Completing an already set value, or
// completing with NONE, fails with ErrStatusAlreadySet or ErrStatusNotAllowed.
func (c Completion) Complete(code StatusCode, detail string) (Completion, error) {
	if c.IsSet() {
		return c, fmt.Errorf("%w: %s", ErrStatusAlreadySet, c.Code)
	}
	if code == StatusNoStatus {
		return c, fmt.Errorf("%w: NONE", ErrStatusNotAllowed)
	}
	return Completed(code, detail), nil
}

func (c Completion) String() string {
	if c.Detail == "" {
		return c.Code.String()
	}
	return c.Code.String() + ": " + c.Detail
}
