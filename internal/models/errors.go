package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCoordinates is returned for NaN, infinite or out of range coordinates
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrLockTimeout is returned when a render layer lock could not be acquired in time
	ErrLockTimeout = errors.New("layer lock timeout")
)

// StorageError wraps a failure of the embedded database
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err unless it is nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ParseError describes a malformed record that was skipped
type ParseError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

// NetworkError wraps a failed tile fetch
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
