package store

import "errors"

// ErrUnknownContent is returned when a version is created against a content
// id that does not exist. This is a caller error and is surfaced immediately.
var ErrUnknownContent = errors.New("unknown content id")

// ErrEmptyBody is returned when a source or version is created without content.
var ErrEmptyBody = errors.New("body must not be empty")
