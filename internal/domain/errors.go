package domain

import "errors"

var (
	// ErrDecode marks a stream entry that cannot be mapped to its event shape.
	// The entry is skipped and acknowledged.
	ErrDecode = errors.New("event decode failure")
	// ErrTemplateNotFound skips a single channel of an event.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateVariableMissing is reported as a warning only.
	ErrTemplateVariableMissing = errors.New("template variable missing")
	// ErrChannelSend is a retryable delivery failure.
	ErrChannelSend = errors.New("channel send failure")
	// ErrPermanentDelivery is reported once a record runs out of attempts.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	// ErrNoDestination fails a record immediately without retry.
	ErrNoDestination = errors.New("no destination")
	ErrNotFound      = errors.New("not found")
)
