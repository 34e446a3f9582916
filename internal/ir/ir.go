// Package ir drives the infrared transceiver that replays and captures raw codes.
// Codes are opaque byte blobs; nothing here decodes them.
package ir

import "context"

// Transceiver sends and captures raw IR signals.
type Transceiver interface {
	// Send replays key. It blocks until the transmitter is done or ctx expires.
	Send(ctx context.Context, key []byte) error

	// BeginCapture activates the receiver. The returned Capture must be ended
	// on every path, or the receiver keeps running.
	BeginCapture(ctx context.Context) (Capture, error)
}

// Capture is an active receiver.
type Capture interface {
	// End stops the receiver and returns everything it recorded.
	// Calling End more than once returns the same data.
	End() ([]byte, error)
}
