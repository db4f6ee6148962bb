package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRecipeNotFound is returned when no recipe exists for a (kind, name).
var ErrRecipeNotFound = errors.New("recipe not found")

// InvalidOverrideError reports an override value that could not be coerced to
// the type implied by the recipe default.
type InvalidOverrideError struct {
	Key    string
	Raw    string
	Reason string
}

func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid override %s=%q: %s", e.Key, e.Raw, e.Reason)
}

// MissingParamsError reports every required parameter that resolved empty, so
// a caller can fix all of them in one pass.
type MissingParamsError struct {
	Keys []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Keys, ", "))
}
