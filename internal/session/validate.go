package session

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid session name")

// Names end up inside the operator socket path, which the kernel caps at
// 108 bytes, so they are kept short.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ValidateName reports whether name can be used as a session directory.
// A leading hyphen or underscore is rejected so names never read as flags.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-32 of [a-z0-9_-], starting with a letter or digit", ErrInvalidName, name)
	}
	return nil
}
