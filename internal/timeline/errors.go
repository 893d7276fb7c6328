package timeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOutOfSession is the errors.Is target for OutOfSessionError.
	ErrOutOfSession = errors.New("timestamp outside trading session")
	// ErrIndexOutOfRange is returned when mapping a negative index back to time.
	ErrIndexOutOfRange = errors.New("timeline index out of range")
	// ErrInvalidSession is returned for malformed session calendars.
	ErrInvalidSession = errors.New("invalid session")
)

// OutOfSessionError reports a timestamp the timeline cannot bucket.
type OutOfSessionError struct {
	TS     time.Time
	Reason string
}

func (e *OutOfSessionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", ErrOutOfSession, e.TS.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s: %s (%s)", ErrOutOfSession, e.TS.Format(time.RFC3339), e.Reason)
}

func (e *OutOfSessionError) Is(target error) bool { return target == ErrOutOfSession }
