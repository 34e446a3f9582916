// Package config loads the daemon configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/aircon-guard/internal/controller"
	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/ir"
	"github.com/sweeney/aircon-guard/internal/logic"
)

// Config is the complete daemon configuration.
type Config struct {
	Window    logic.Window `yaml:"window"`
	Secondary string       `yaml:"secondary"` // "door" or "vibration"

	Monitor    Monitor    `yaml:"monitor"`
	Supervisor Supervisor `yaml:"supervisor"`
	Capture    Capture    `yaml:"capture"`

	Pins gpio.Pins `yaml:"pins"`
	IR   IR        `yaml:"ir"`

	KeyDir    string        `yaml:"key_dir"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	HTTPAddr  string        `yaml:"http"`
}

// Monitor is the occupancy monitor policy.
type Monitor struct {
	MotionRunLimit time.Duration `yaml:"motion_run_limit"`
	SecondaryGrace time.Duration `yaml:"secondary_grace"`
	Poll           time.Duration `yaml:"poll"`
}

// Supervisor is the shutdown confirmation policy.
type Supervisor struct {
	ConfirmTicks int           `yaml:"confirm_ticks"`
	ConfirmTick  time.Duration `yaml:"confirm_tick"`
	ConfirmGrace time.Duration `yaml:"confirm_grace"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Escalate     bool          `yaml:"escalate"`
}

// Capture is the key capture policy.
type Capture struct {
	Duration     time.Duration `yaml:"duration"`
	MinKeyLength int           `yaml:"min_key_length"`
}

// IR configures the ir-ctl transceiver.
type IR struct {
	Binary      string        `yaml:"binary"`
	SendDevice  string        `yaml:"send_device"`
	RecvDevice  string        `yaml:"recv_device"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// Default returns the configuration of the reference installation.
func Default() Config {
	return Config{
		Window:    logic.Window{Start: logic.NewTimeOfDay(8, 0), End: logic.NewTimeOfDay(22, 0)},
		Secondary: "door",
		Monitor: Monitor{
			MotionRunLimit: logic.DefaultMotionRunLimit,
			SecondaryGrace: logic.DefaultSecondaryGrace,
			Poll:           controller.DefaultEpisodePoll,
		},
		Supervisor: Supervisor{
			ConfirmTicks: controller.DefaultConfirmTicks,
			ConfirmTick:  controller.DefaultConfirmTick,
			ConfirmGrace: controller.DefaultConfirmGrace,
			MaxAttempts:  controller.DefaultMaxAttempts,
			Escalate:     true,
		},
		Capture: Capture{
			Duration:     controller.DefaultCaptureDuration,
			MinKeyLength: logic.DefaultMinKeyLength,
		},
		Pins: gpio.DefaultPins(),
		IR: IR{
			Binary:      ir.DefaultBinary,
			SendDevice:  ir.DefaultSendDevice,
			RecvDevice:  ir.DefaultRecvDevice,
			SendTimeout: ir.DefaultSendTimeout,
		},
		KeyDir:    "/var/lib/aircon-guard",
		Poll:      100 * time.Millisecond,
		Heartbeat: 15 * time.Minute,
		Broker:    "tcp://192.168.1.200:1883",
		ClientID:  "aircon-guard",
		HTTPAddr:  ":80",
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document does not set.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if _, err := gpio.SecondaryByName(c.Secondary); err != nil {
		errs = append(errs, err)
	}
	if c.Monitor.MotionRunLimit <= 0 {
		errs = append(errs, errors.New("monitor.motion_run_limit must be positive"))
	}
	if c.Monitor.SecondaryGrace <= 0 {
		errs = append(errs, errors.New("monitor.secondary_grace must be positive"))
	}
	if c.Monitor.Poll <= 0 {
		errs = append(errs, errors.New("monitor.poll must be positive"))
	}
	if c.Supervisor.ConfirmTicks < 1 {
		errs = append(errs, errors.New("supervisor.confirm_ticks must be at least 1"))
	}
	if c.Supervisor.ConfirmTick <= 0 {
		errs = append(errs, errors.New("supervisor.confirm_tick must be positive"))
	}
	if c.Supervisor.MaxAttempts < 1 {
		errs = append(errs, errors.New("supervisor.max_attempts must be at least 1"))
	}
	if c.Capture.Duration <= 0 {
		errs = append(errs, errors.New("capture.duration must be positive"))
	}
	if c.Capture.MinKeyLength < 1 {
		errs = append(errs, errors.New("capture.min_key_length must be at least 1"))
	}
	if c.Poll <= 0 {
		errs = append(errs, errors.New("poll must be positive"))
	}
	if c.KeyDir == "" {
		errs = append(errs, errors.New("key_dir is required"))
	}
	if c.secondaryPin() <= 0 {
		errs = append(errs, fmt.Errorf("pins.%s is required for secondary %q", c.Secondary, c.Secondary))
	}
	return errors.Join(errs...)
}

func (c Config) secondaryPin() int {
	if c.Secondary == "vibration" {
		return c.Pins.Vibration
	}
	return c.Pins.Door
}

// Controller returns the controller policy.
func (c Config) Controller() controller.Config {
	return controller.Config{
		Window: c.Window,
		Monitor: logic.MonitorPolicy{
			MotionRunLimit: c.Monitor.MotionRunLimit,
			SecondaryGrace: c.Monitor.SecondaryGrace,
		},
		Supervisor: controller.SupervisorPolicy{
			ConfirmTicks: c.Supervisor.ConfirmTicks,
			ConfirmTick:  c.Supervisor.ConfirmTick,
			ConfirmGrace: c.Supervisor.ConfirmGrace,
			MaxAttempts:  c.Supervisor.MaxAttempts,
			Escalate:     c.Supervisor.Escalate,
		},
		EpisodePoll:     c.Monitor.Poll,
		CaptureDuration: c.Capture.Duration,
		MinKeyLength:    c.Capture.MinKeyLength,
	}
}

// Transceiver returns the ir-ctl transceiver for this configuration.
func (c Config) Transceiver() *ir.IRCtl {
	return &ir.IRCtl{
		Binary:      c.IR.Binary,
		SendDevice:  c.IR.SendDevice,
		RecvDevice:  c.IR.RecvDevice,
		SendTimeout: c.IR.SendTimeout,
	}
}
