package rechannel

import "github.com/pkg/errors"

var (
	// ErrNotConnected is returned by Send when the channel has no open connection.
	ErrNotConnected = errors.New("channel is not connected")

	// ErrClosed is returned by operations on a channel after Close.
	ErrClosed = errors.New("channel is closed")

	ErrInvalidConfig = errors.New("invalid channel config")

	// ErrConnectionClosed marks a normal close of the underlying transport.
	// Any other read error is reported as an error event before the disconnect.
	ErrConnectionClosed = errors.New("connection closed")

	ErrMalformedPayload = errors.New("malformed payload")
)
