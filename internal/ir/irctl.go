package ir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/aircon-guard/internal/logic"
)

// Defaults for the LIRC devices of the reference board.
const (
	DefaultBinary      = "ir-ctl"
	DefaultSendDevice  = "/dev/lirc0"
	DefaultRecvDevice  = "/dev/lirc1"
	DefaultSendTimeout = 5 * time.Second
)

// IRCtl runs the ir-ctl tool from v4l-utils.
type IRCtl struct {
	Binary      string
	SendDevice  string
	RecvDevice  string
	SendTimeout time.Duration
}

// NewIRCtl returns an IRCtl with the default devices.
func NewIRCtl() *IRCtl {
	return &IRCtl{
		Binary:      DefaultBinary,
		SendDevice:  DefaultSendDevice,
		RecvDevice:  DefaultRecvDevice,
		SendTimeout: DefaultSendTimeout,
	}
}

// Send writes key to a temporary file and replays it with ir-ctl --send.
func (c *IRCtl) Send(ctx context.Context, key []byte) error {
	f, err := os.CreateTemp("", "aircon-key-*")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", logic.ErrSendFailed, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(key); err != nil {
		f.Close()
		return fmt.Errorf("%w: write temp file: %v", logic.ErrSendFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", logic.ErrSendFailed, err)
	}

	if c.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.SendTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Binary, "-d", c.SendDevice, "--send="+f.Name())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", logic.ErrSendFailed, err, bytes.TrimSpace(out))
	}
	return nil
}

// BeginCapture starts ir-ctl in mode2 receive mode, buffering its output.
func (c *IRCtl) BeginCapture(ctx context.Context) (Capture, error) {
	p := &process{}
	p.cmd = exec.CommandContext(ctx, c.Binary, "--mode2", "-d", c.RecvDevice, "-r")
	p.cmd.Stdout = &p.buf
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	log.Debug().Int("pid", p.cmd.Process.Pid).Str("device", c.RecvDevice).Msg("ir receiver started")
	return p, nil
}

// process is a running ir-ctl receiver.
type process struct {
	cmd  *exec.Cmd
	buf  bytes.Buffer
	once sync.Once
	data []byte
	err  error
}

// End kills the receiver and waits for its output to be flushed.
func (p *process) End() ([]byte, error) {
	p.once.Do(func() {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.err = fmt.Errorf("stop capture: %w", err)
		}
		// Wait reports the kill as an error; the output is still complete.
		p.cmd.Wait()
		p.data = p.buf.Bytes()
		log.Debug().Int("bytes", len(p.data)).Msg("ir receiver stopped")
	})
	return p.data, p.err
}
