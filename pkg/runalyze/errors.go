package runalyze

import (
	"errors"
	"fmt"
)

// ErrDelivery matches every failed delivery, rejected or unreachable.
var ErrDelivery = errors.New("delivery failed")

// StatusError is returned when the API answered with a status other than
// 200 or 201.
type StatusError struct {
	Kind       MetricKind
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s delivery rejected with status %d: %s", e.Kind, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrDelivery
}

// NetworkError is returned when no response was received at all.
type NetworkError struct {
	Kind MetricKind
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Kind, e.Err)
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrDelivery
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
