package series

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexNotFound is the errors.Is target for IndexNotFoundError.
	ErrIndexNotFound = errors.New("index not found")
	// ErrStaleBar is returned by the Aggregator for bars too far behind the newest index.
	ErrStaleBar = errors.New("stale bar")
	// ErrUnknownSeries is returned for lookups of a key no series exists for.
	ErrUnknownSeries = errors.New("unknown series")
)

// IndexNotFoundError reports a lookup of a timeline index the series does not hold.
type IndexNotFoundError struct {
	Key   string
	Index int
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("series %s: %s: %d", e.Key, ErrIndexNotFound, e.Index)
}

func (e *IndexNotFoundError) Is(target error) bool { return target == ErrIndexNotFound }
