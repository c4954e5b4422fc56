package pipeline

import "errors"

var (
	// ErrNoContent indicates a run harvested zero items.
	ErrNoContent = errors.New("no content harvested")
	// ErrNoBaseVersion indicates refinement found no edited or transformed
	// version to build on.
	ErrNoBaseVersion = errors.New("no base version to refine")
)
