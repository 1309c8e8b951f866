package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cjeanneret/babycam/internal/config"
	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/hw/gpio"
	"github.com/cjeanneret/babycam/internal/hw/stepper"
	"github.com/cjeanneret/babycam/internal/link"
	"github.com/cjeanneret/babycam/internal/logic/follow"
	"github.com/cjeanneret/babycam/internal/logic/geometry"
	"github.com/cjeanneret/babycam/internal/logic/motion"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
	"github.com/cjeanneret/babycam/internal/perception"
	"github.com/cjeanneret/babycam/internal/web"
)

// homeTimeout bounds the return to the home position on exit.
const homeTimeout = 10 * time.Second

func runTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	webPort := &webPortFlag{defaultPort: 8080}
	fs.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := fs.String("config", defaultConfigPath, "path to config file")
	maxMotorStep := fs.Int("max_motor_step", 0, "override max motor step per frame (1-1000)")
	deadZone := fs.Float64("dead_zone", 0, "override dead zone, fraction of the frame (0-0.5)")
	smoothing := fs.Float64("smoothing_factor", 0, "override smoothing factor (0-1]")
	dryRun := fs.Bool("dry-run", false, "compute and log commands without driving any actuator")
	if err := fs.Parse(args); err != nil {
		return err
	}

	overrides := web.Overrides{MaxMotorStep: *maxMotorStep, DeadZone: *deadZone, SmoothingFactor: *smoothing}
	// Only non-zero values are applied; zero means "use config".
	if err := validateCLIOverrides(overrides); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	cfg.Tracker = overrides.Apply(cfg.Tracker)
	if err := cfg.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	debug.PrintStruct("Tracker config", cfg.Tracker)

	var actuator follow.Actuator
	if !*dryRun {
		a, closeAll, err := buildActuators(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeAll()
		actuator = a
	}

	session := newTrackingSession(cfg, actuator)
	if angles, ok := angleFunc(cfg); ok {
		session.angles = angles
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		session.observer = broadcaster.BroadcastFrame

		srv, err := web.NewServer(webAddr, broadcaster, session)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	}

	err = session.Run(ctx, web.Overrides{})
	if errors.Is(err, context.Canceled) {
		debug.Info("Tracking interrupted")
		return nil
	}
	return err
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
func validateCLIOverrides(o web.Overrides) error {
	return web.ValidateOverrides(o)
}

// buildActuators assembles every configured command consumer. The returned
// func releases them (motors are disabled first).
func buildActuators(ctx context.Context, cfg *config.Config) (follow.Actuator, func(), error) {
	var (
		actuators follow.MultiActuator
		closers   []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Actuator.Steppers {
		ctrl, gpioDriver, err := newMotionController(cfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := gpioDriver.Close(); err != nil {
				debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
			}
		}, func() {
			homeCtx, cancel := context.WithTimeout(context.Background(), homeTimeout)
			defer cancel()
			if err := ctrl.Home(homeCtx); err != nil {
				debug.Error(fmt.Errorf("returning home failed: %w", err))
			}
			if err := ctrl.DisableMotors(); err != nil {
				debug.Error(fmt.Errorf("disabling motors failed: %w", err))
			}
		})
		actuators = append(actuators, ctrl)
	}

	if addr := cfg.Actuator.UDPAddr; addr != "" {
		debug.Value("UDP command sink", addr)
		sender, err := link.NewUDPSender(addr)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { sender.Close() })
		actuators = append(actuators, sender)
	}

	if m := cfg.Actuator.MQTT; m.Enabled {
		debug.Value("MQTT broker", m.Broker)
		client, err := link.DialMQTT(ctx, m)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		pub := link.NewMQTTPublisher(client, m.Topic, m.QoS)
		closers = append(closers, func() { pub.Close() })
		actuators = append(actuators, pub)
	}

	if len(actuators) == 0 {
		debug.Info("No actuator configured: commands are only logged")
		return nil, closeAll, nil
	}
	return actuators, closeAll, nil
}

// newMotionController initializes GPIO and both steppers.
func newMotionController(cfg *config.Config) (*motion.Controller, gpio.Driver, error) {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, nil, fmt.Errorf("init GPIO failed: %w", err)
	}

	debug.Step(2, "Initializing stepper motors")
	stepDelay := cfg.MoveSpeed() / 2
	panMotor := stepper.NewStepper(gpioDriver, stepperConfig("pan", cfg.PanStepper, stepDelay))
	debug.PrintStruct("Pan stepper config", cfg.PanStepper)
	tiltMotor := stepper.NewStepper(gpioDriver, stepperConfig("tilt", cfg.TiltStepper, stepDelay))
	debug.PrintStruct("Tilt stepper config", cfg.TiltStepper)

	ctrl := motion.NewController(panMotor, tiltMotor, geometry.NewStepsCalculator(cfg))
	if err := ctrl.EnableMotors(); err != nil {
		gpioDriver.Close()
		return nil, nil, fmt.Errorf("enable motors: %w", err)
	}
	return ctrl, gpioDriver, nil
}

func stepperConfig(name string, c config.StepperConfig, delay time.Duration) stepper.Config {
	return stepper.Config{
		Name:          name,
		StepPin:       c.StepPin,
		DirPin:        c.DirPin,
		EnablePin:     c.EnablePin,
		StepsPerRev:   c.StepsPerRev,
		Microstepping: c.Microstepping,
		StepDelay:     delay,
		MinPosition:   c.MinPosition,
		MaxPosition:   c.MaxPosition,
	}
}

// angleFunc returns the off-axis angle diagnostic when lens and sensor are configured.
func angleFunc(cfg *config.Config) (follow.AngleFunc, bool) {
	if cfg.Sensor == nil {
		return nil, false
	}
	fov, err := geometry.NewFOVCalculator(cfg)
	if err != nil {
		debug.Error(err)
		return nil, false
	}
	debug.Value("Horizontal FOV", fov.HorizontalFOV())
	debug.Value("Vertical FOV", fov.VerticalFOV())
	return fov.OffsetAngles, true
}

// openSource opens the configured detection source.
func openSource(cfg *config.Config) (perception.Source, error) {
	switch cfg.Perception.Type {
	case "replay":
		debug.Value("Replay file", cfg.Perception.ReplayPath)
		return perception.OpenReplay(cfg.Perception.ReplayPath, cfg.ReplayInterval())
	default:
		debug.Value("Detection listen address", cfg.Perception.UDPAddr)
		return perception.ListenUDP(cfg.Perception.UDPAddr, cfg.Perception.ReadBuffer)
	}
}

// trackingSession runs one tracking loop at a time and serves the web handlers.
type trackingSession struct {
	cfg      *config.Config
	actuator follow.Actuator
	angles   follow.AngleFunc
	observer func(follow.Update)
	open     func(*config.Config) (perception.Source, error)

	mu   sync.Mutex
	busy bool
	loop *follow.Loop
	last follow.Status
}

func newTrackingSession(cfg *config.Config, actuator follow.Actuator) *trackingSession {
	return &trackingSession{cfg: cfg, actuator: actuator, open: openSource}
}

// Run tracks with the base config plus o until ctx ends or the source is exhausted.
func (s *trackingSession) Run(ctx context.Context, o web.Overrides) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return errors.New("tracking already in progress")
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.loop = nil
		s.mu.Unlock()
	}()

	ctrl, err := tracking.NewController(o.Apply(s.cfg.Tracker))
	if err != nil {
		return err
	}
	src, err := s.open(s.cfg)
	if err != nil {
		return fmt.Errorf("open detection source: %w", err)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	var opts []follow.Option
	if s.actuator != nil {
		opts = append(opts, follow.WithActuator(s.actuator))
	}
	if s.angles != nil {
		opts = append(opts, follow.WithAngles(s.angles))
	}
	if s.observer != nil {
		opts = append(opts, follow.WithObserver(s.observer))
	}
	loop, err := follow.NewLoop(ctrl, src, opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()

	err = loop.Run(ctx)

	s.mu.Lock()
	s.last = loop.Status()
	s.mu.Unlock()
	return err
}

func (s *trackingSession) Status() follow.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		return s.loop.Status()
	}
	return s.last
}

func (s *trackingSession) Config() tracking.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		return s.loop.Controller().Config()
	}
	return s.cfg.Tracker
}

// Reset clears the running controller's smoothing history.
func (s *trackingSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return web.ErrNotRunning
	}
	s.loop.Controller().Reset()
	debug.Info("Tracking state reset")
	return nil
}
