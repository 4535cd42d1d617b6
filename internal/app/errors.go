package app

import "errors"

// ErrNotFound reports that a referenced stream id does not exist.
var ErrNotFound = errors.New("not found")
