// Command aircon-guard switches the air-conditioner off when the room has been
// empty for too long during restricted hours.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/sweeney/aircon-guard/internal/config"
	"github.com/sweeney/aircon-guard/internal/controller"
	"github.com/sweeney/aircon-guard/internal/display"
	"github.com/sweeney/aircon-guard/internal/gpio"
	"github.com/sweeney/aircon-guard/internal/host"
	"github.com/sweeney/aircon-guard/internal/keystore"
	"github.com/sweeney/aircon-guard/internal/metrics"
	"github.com/sweeney/aircon-guard/internal/mqtt"
	"github.com/sweeney/aircon-guard/internal/status"
	"github.com/sweeney/aircon-guard/internal/web"
)

func main() {
	fs := newFlagSet()
	_ = fs.Parse(os.Args[1:])

	level, _ := fs.GetString("log-level")
	if err := setupLogging(level); err != nil {
		log.Fatal().Err(err).Msg("bad --log-level")
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}
	dryRun, _ := fs.GetBool("dry-run")
	printState, _ := fs.GetBool("print-state")

	if err := run(cfg, dryRun, printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func newFlagSet() *pflag.FlagSet {
	d := config.Default()
	fs := pflag.NewFlagSet("aircon-guard", pflag.ExitOnError)
	fs.StringP("config", "c", "", "YAML configuration file")
	fs.Duration("poll", d.Poll, "GPIO polling interval")
	fs.String("broker", d.Broker, "MQTT broker address")
	fs.Duration("heartbeat", d.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.String("http", d.HTTPAddr, "HTTP status address (empty to disable)")
	fs.String("key-dir", d.KeyDir, "Directory holding the captured remote key")
	fs.String("secondary", d.Secondary, `Signal showing the AC is running ("door" or "vibration")`)
	fs.Bool("dry-run", false, "Log instead of restarting the host when shutdown cannot be confirmed")
	fs.Bool("print-state", false, "Print current inputs and exit")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	return fs
}

// loadConfig reads --config and applies the flags the user set explicitly.
func loadConfig(fs *pflag.FlagSet) (config.Config, error) {
	path, _ := fs.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if fs.Changed("poll") {
		cfg.Poll, _ = fs.GetDuration("poll")
	}
	if fs.Changed("broker") {
		cfg.Broker, _ = fs.GetString("broker")
	}
	if fs.Changed("heartbeat") {
		cfg.Heartbeat, _ = fs.GetDuration("heartbeat")
	}
	if fs.Changed("http") {
		cfg.HTTPAddr, _ = fs.GetString("http")
	}
	if fs.Changed("key-dir") {
		cfg.KeyDir, _ = fs.GetString("key-dir")
	}
	if fs.Changed("secondary") {
		cfg.Secondary, _ = fs.GetString("secondary")
	}
	return cfg, cfg.Validate()
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}

func run(cfg config.Config, dryRun, printState bool) error {
	// Initialize GPIO
	gpioReader, err := gpio.NewRealReader(cfg.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer gpioReader.Close()

	// Print state mode
	if printState {
		in, err := gpioReader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("motion: %s, door: %s, vibration: %s, scan: %s, test: %s\n",
			onOff(in.Motion), openClosed(in.DoorClosed), onOff(in.Vibration), onOff(in.Scan), onOff(in.Test))
		return nil
	}

	secondary, err := gpio.SecondaryByName(cfg.Secondary)
	if err != nil {
		return err
	}

	keys, err := keystore.Open(cfg.KeyDir)
	if err != nil {
		return err
	}
	action, err := keys.Recover()
	if err != nil {
		return fmt.Errorf("recover keys: %w", err)
	}
	if action != keystore.RecoverNone {
		log.Warn().Str("action", string(action)).Str("dir", keys.Dir()).Msg("interrupted capture recovered")
	}
	if !keys.HasCurrent() {
		log.Warn().Msg("no remote key captured yet, press scan")
	}

	var led gpio.Indicator
	if ind, err := gpio.NewRealIndicator(cfg.Pins.LED); err != nil {
		log.Warn().Err(err).Msg("status led unavailable")
	} else {
		defer ind.Close()
		led = ind
	}

	var restarter host.Restarter = host.Reboot{}
	if dryRun {
		restarter = host.DryRun{}
	}

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:           cfg.Poll.Milliseconds(),
		EpisodePollMs:    cfg.Monitor.Poll.Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		MotionRunLimitMs: cfg.Monitor.MotionRunLimit.Milliseconds(),
		SecondaryGraceMs: cfg.Monitor.SecondaryGrace.Milliseconds(),
		MaxAttempts:      cfg.Supervisor.MaxAttempts,
		Escalate:         cfg.Supervisor.Escalate && !dryRun,
		Window:           cfg.Window.String(),
		Secondary:        secondary.Name(),
		Broker:           cfg.Broker,
		HTTPAddr:         cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn().Err(err).Msg("failed to publish startup event")
	} else {
		log.Info().Msg("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	ctrl := controller.New(cfg.Controller(), controller.Deps{
		Reader:    gpioReader,
		Secondary: secondary,
		LED:       led,
		IR:        cfg.Transceiver(),
		Keys:      keys,
		Restarter: restarter,
		Events:    publisher,
		Display:   display.Tee{display.Log{}, tracker},
		Status:    tracker,
	})

	log.Info().
		Dur("poll", cfg.Poll).
		Stringer("window", cfg.Window).
		Str("secondary", secondary.Name()).
		Str("broker", cfg.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Bool("dry_run", dryRun).
		Msg("started")

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	// A signal also cancels ctx so a running episode or capture stops waiting.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	loopSig := make(chan os.Signal, 1)
	go func() {
		s := <-sigCh
		loopSig <- s
		cancel()
	}()

	return runLoop(ctx, gpioReader, ctrl, publisher, publisher, tracker, cfg.Heartbeat, time.Now, ticker.C, loopSig)
}

// tickHandler is the part of the controller the outer loop drives.
type tickHandler interface {
	Tick(ctx context.Context, in gpio.Inputs)
}

func runLoop(ctx context.Context, gpioReader gpio.Reader, ctrl tickHandler, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("failed to publish shutdown event")
			} else {
				log.Info().Msg("published shutdown event")
			}
			return nil

		case <-tick:
			if ctx.Err() != nil {
				// Shutting down; wait for the signal case.
				continue
			}
			in, err := gpioReader.Read()
			if err != nil {
				log.Warn().Err(err).Msg("gpio read error")
				metrics.SensorError()
				continue
			}

			ctrl.Tick(ctx, in)

			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			t := now()
			if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
				continue
			}
			lastHeartbeat = t
			log.Debug().Msg("heartbeat")

			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func openClosed(closed bool) string {
	if closed {
		return "CLOSED"
	}
	return "OPEN"
}
