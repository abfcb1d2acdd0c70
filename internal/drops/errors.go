package drops

import (
	"errors"
	"fmt"
)

var (
	ErrDropNotFound = errors.New("drop not found")
	ErrInvalidDrop  = errors.New("invalid drop")
)

// FetchError records a failed catalog fetch for one drop. Prefetch never
// returns it; it is kept on the drop's LoadState.
type FetchError struct {
	DropID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch drop %s: %v", e.DropID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
