package audio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrNotPrepared       = errors.New("not prepared")
	ErrQueueFull         = errors.New("command queue full")
	ErrStructuralCycle   = errors.New("cycle in graph")
	ErrDeviceXrun        = errors.New("device xrun")
)

// Reason says why a connection was rejected.
type Reason int

const (
	ReasonMissingEndpoint Reason = iota + 1
	ReasonKindMismatch
	ReasonDirection
	ReasonOccupied
	ReasonCycle
	ReasonDuplicate
)

var reasonNames = map[Reason]string{
	ReasonMissingEndpoint: "missing endpoint",
	ReasonKindMismatch:    "port kind mismatch",
	ReasonDirection:       "wrong port direction",
	ReasonOccupied:        "input already connected",
	ReasonCycle:           "cycle",
	ReasonDuplicate:       "duplicate connection",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ConnectionError is returned when a connection is rejected. It matches
// ErrInvalidConnection with errors.Is.
type ConnectionError struct {
	Reason Reason
	Detail string
}

func (e *ConnectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid connection: %s", e.Reason)
	}
	return fmt.Sprintf("invalid connection: %s: %s", e.Reason, e.Detail)
}

func (e *ConnectionError) Unwrap() error { return ErrInvalidConnection }

// RejectConnection builds a ConnectionError.
func RejectConnection(r Reason, format string, args ...interface{}) error {
	return &ConnectionError{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// IsReason reports whether err is a ConnectionError with reason r.
func IsReason(err error, r Reason) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Reason == r
}

// RangeError reports a parameter outside its valid range. It matches
// ErrInvalidArgument.
type RangeError struct {
	Name     string
	Min, Max float64
	Value    float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s is not in valid range %v - %v: %v", e.Name, e.Min, e.Max, e.Value)
}

func (e *RangeError) Unwrap() error { return ErrInvalidArgument }

// CheckRange returns a RangeError when v is outside [min, max].
func CheckRange(name string, v, min, max float64) error {
	if v < min || v > max || v != v {
		return &RangeError{Name: name, Min: min, Max: max, Value: v}
	}
	return nil
}
