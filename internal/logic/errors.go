package logic

import "errors"

var (
	// ErrNoKeyCaptured is returned when a send is attempted without a valid key.
	ErrNoKeyCaptured = errors.New("no key captured")

	// ErrCaptureTooShort is returned when the captured signal is below the minimum length.
	ErrCaptureTooShort = errors.New("captured signal too short")

	// ErrSendFailed is returned when the transceiver reports a failed send.
	ErrSendFailed = errors.New("ir send failed")

	// ErrConfirmationTimeout is returned when the AC still appears to run after every attempt.
	ErrConfirmationTimeout = errors.New("shutdown not confirmed")

	// ErrWindowExited reports that the restricted window ended mid-episode.
	// It is a clean abort, not a failure.
	ErrWindowExited = errors.New("restricted window exited")
)
