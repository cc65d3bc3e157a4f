package registry

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Outcome is the result of validating a nickname candidate.
type Outcome int

const (
	// Valid means the candidate may be registered.
	Valid Outcome = iota
	// Blank means the candidate is empty or only whitespace.
	Blank
	// ContainsWhitespace means the candidate has a whitespace rune in it.
	ContainsWhitespace
	// AlreadyTaken means a registered nickname folds to the same key.
	AlreadyTaken
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Blank:
		return "blank"
	case ContainsWhitespace:
		return "contains whitespace"
	case AlreadyTaken:
		return "already taken"
	default:
		return "unknown"
	}
}

var (
	// ErrDuplicateNickname is returned when a registration or rename
	// collides with a nickname that is already registered.
	ErrDuplicateNickname = errors.New("registry: duplicate nickname")

	// ErrUnknownNickname is returned by Rename when the old nickname is not
	// registered.
	ErrUnknownNickname = errors.New("registry: unknown nickname")

	// ErrInvalidNickname is the sentinel wrapped by NicknameError.
	ErrInvalidNickname = errors.New("registry: invalid nickname")
)

// NicknameError reports a candidate that failed the syntactic checks.
type NicknameError struct {
	Nickname string
	Outcome  Outcome
}

func (e *NicknameError) Error() string {
	return fmt.Sprintf("registry: nickname %q is %s", e.Nickname, e.Outcome)
}

func (e *NicknameError) Unwrap() error {
	return ErrInvalidNickname
}

// checkSyntax reports Blank or ContainsWhitespace, or Valid when neither
// applies. It never consults registry state.
func checkSyntax(candidate string) Outcome {
	if strings.TrimSpace(candidate) == "" {
		return Blank
	}
	if strings.ContainsFunc(candidate, unicode.IsSpace) {
		return ContainsWhitespace
	}
	return Valid
}

// foldKey returns the key used for case-insensitive uniqueness. A Caser is
// stateful, so a fresh one is built per call.
func foldKey(nickname string) string {
	return cases.Fold().String(nickname)
}
