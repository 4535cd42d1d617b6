package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the base of every input-validation failure so callers can
// classify them with a single errors.Is check.
var ErrValidation = errors.New("validation failed")

var (
	ErrInvalidID           = fmt.Errorf("%w: invalid id", ErrValidation)
	ErrInvalidStreamNumber = fmt.Errorf("%w: invalid stream number", ErrValidation)
	ErrInvalidTitle        = fmt.Errorf("%w: invalid title", ErrValidation)
	ErrInvalidCategory     = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrInvalidPriority     = fmt.Errorf("%w: invalid priority", ErrValidation)
	ErrInvalidStatus       = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidProgress     = fmt.Errorf("%w: progress out of range", ErrValidation)
	ErrInvalidPhase        = fmt.Errorf("%w: invalid phase index", ErrValidation)
	ErrInvalidWorktreePath = fmt.Errorf("%w: invalid worktree path", ErrValidation)
	ErrInvalidBranch       = fmt.Errorf("%w: invalid branch", ErrValidation)
	ErrInvalidCommitHash   = fmt.Errorf("%w: invalid commit hash", ErrValidation)
	ErrInvalidFilesChanged = fmt.Errorf("%w: files changed must be >= 0", ErrValidation)
)
