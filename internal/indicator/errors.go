package indicator

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is the errors.Is target for InvalidParameterError.
var ErrInvalidParameter = errors.New("invalid indicator parameter")

// InvalidParameterError reports a malformed indicator spec.
type InvalidParameterError struct {
	Kind   string
	Param  string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	msg := fmt.Sprintf("%s: %s %s=%q", ErrInvalidParameter, e.Kind, e.Param, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

func invalid(kind Kind, param string, value any, reason string) error {
	return &InvalidParameterError{Kind: kind.String(), Param: param, Value: fmt.Sprint(value), Reason: reason}
}
