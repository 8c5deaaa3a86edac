package models

import (
	"errors"
	"fmt"
)

var (
	ErrDecode           = errors.New("image decode failed")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrImageTooSmall    = errors.New("image too small")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoResults        = errors.New("no results")
)

// ParameterError names the noise parameter that is out of its domain
type ParameterError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%g: %s", e.Param, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// FilterError ties a failure to the filter that produced it
type FilterError struct {
	Filter string
	Err    error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %q: %v", e.Filter, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// ErrorKind maps an error onto the name of its taxonomy entry
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "DecodeError"
	case errors.Is(err, ErrInvalidParameter):
		return "InvalidParameter"
	case errors.Is(err, ErrImageTooSmall):
		return "ImageTooSmall"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrNoResults):
		return "NoResults"
	default:
		return "Internal"
	}
}
