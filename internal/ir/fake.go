package ir

import "context"

// FakeTransceiver records sends and returns scripted captures.
type FakeTransceiver struct {
	// Sent contains every key passed to Send, including failed sends.
	Sent [][]byte

	// SendErrors, if set, are returned by successive Send calls.
	// A nil entry means success; calls past the end succeed.
	SendErrors []error

	// CaptureData is returned by End.
	CaptureData []byte

	// BeginError, if set, is returned by BeginCapture.
	BeginError error

	// EndError, if set, is returned by End.
	EndError error

	// Begun and Ended count capture starts and stops.
	Begun int
	Ended int

	// OnSend, if set, is called after each send is recorded.
	OnSend func(key []byte)
}

// Send records key.
func (f *FakeTransceiver) Send(ctx context.Context, key []byte) error {
	n := len(f.Sent)
	f.Sent = append(f.Sent, append([]byte(nil), key...))
	if f.OnSend != nil {
		f.OnSend(key)
	}
	if n < len(f.SendErrors) {
		return f.SendErrors[n]
	}
	return nil
}

// BeginCapture starts a fake capture.
func (f *FakeTransceiver) BeginCapture(ctx context.Context) (Capture, error) {
	if f.BeginError != nil {
		return nil, f.BeginError
	}
	f.Begun++
	return &fakeCapture{f: f}, nil
}

// Active reports whether a capture is running.
func (f *FakeTransceiver) Active() bool {
	return f.Begun > f.Ended
}

type fakeCapture struct {
	f     *FakeTransceiver
	ended bool
}

func (c *fakeCapture) End() ([]byte, error) {
	if !c.ended {
		c.ended = true
		c.f.Ended++
	}
	return c.f.CaptureData, c.f.EndError
}
