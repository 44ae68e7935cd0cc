package messaging

import (
	"errors"
	"fmt"
)

// ErrEmptyResult is returned by PullNext when no message became available
// within the pull's window.
var ErrEmptyResult = errors.New("no messages available on subscription")

// ConversionError reports that a payload could not be serialized or
// deserialized by the configured MessageConverter.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("message conversion failed: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// PublishError reports a publish that was rejected by the broker or failed
// in transport. It carries the originating cause.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to topic %s failed: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
