// Command dhd-bridge connects a control surface to a mixing device.
//
// The bridge keeps one websocket control channel to the device, tracks the
// paths its actions are bound to, and mirrors device state on the surface.
// Pads of a Novation Launchpad (or console commands) toggle switches and
// move values on the device.
//
// Usage:
//
//	dhd-bridge [flags]
//
// Flags:
//
//	-config string          Configuration file path (YAML)
//	-address string         Device address: host, host:port or ws:// URL
//	-token string           Authentication token
//	-log-level string       Log level: debug, info, warn, error
//	-interactive            Enable the interactive console
//	-metrics-listen string  Serve Prometheus metrics on this address
//	-protocol-log string    Write a protocol capture file
//	-discover               Locate the device via mDNS even if an address is set
//
// Examples:
//
//	# Bridge a configured surface to a console
//	dhd-bridge -config bridge.yaml
//
//	# Explore a device interactively
//	dhd-bridge -address 10.0.0.20 -token secret -interactive
//
// Signals:
//
//	SIGHUP           Reload the configuration file: credentials and log level
//	SIGINT, SIGTERM  Shut down
//
// Interactive Commands:
//
//	get <path>              - Read a value once
//	set <path> <value>      - Write a value (JSON, or a bare string)
//	watch <path>            - Print every change of a path
//	unwatch <path>          - Stop printing a path
//	paths                   - List tracked paths
//	status                  - Show connection status
//	auth <token> [address]  - Change credentials and reconnect
//	discover                - Browse for devices
//	actions                 - List bound actions
//	press <context>         - Press an action key
//	turn <context> <ticks>  - Rotate a dial action
//	quit                    - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/dhd-bridge/dhd-go/pkg/action"
	"github.com/dhd-bridge/dhd-go/pkg/client"
	"github.com/dhd-bridge/dhd-go/pkg/config"
	"github.com/dhd-bridge/dhd-go/pkg/discovery"
	"github.com/dhd-bridge/dhd-go/pkg/log"
	"github.com/dhd-bridge/dhd-go/pkg/metrics"
	"github.com/dhd-bridge/dhd-go/pkg/surface"
)

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.Address, "address", "", "Device address: host, host:port or ws:// URL")
	flag.StringVar(&opts.Token, "token", "", "Authentication token")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable the interactive console")
	flag.StringVar(&opts.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write a protocol capture file")
	flag.BoolVar(&opts.Discover, "discover", false, "Locate the device via mDNS even if an address is set")
}

func main() {
	flag.Parse()
	flag.Visit(func(f *flag.Flag) { opts.set(f.Name) })

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dhd-bridge: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dhd-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *Console
	var out io.Writer = os.Stderr
	if opts.Interactive {
		rl, err := newReadline()
		if err != nil {
			return err
		}
		console = &Console{rl: rl, out: rl.Stdout()}
		out = rl.Stderr()
	}

	level := new(slog.LevelVar)
	lvl, _ := cfg.Logging.SlogLevel()
	level.Set(lvl)
	logger := newLogger(out, cfg.Logging.Format, level)
	slog.SetDefault(logger)

	logger.Info("dhd-bridge starting", "config", opts.ConfigFile)

	// Protocol capture
	loggers := []log.Logger{log.NewSlogAdapter(logger.With("component", "capture"))}
	if cfg.Logging.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.Logging.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fl.Close()
		logger.Info("protocol capture enabled", "file", fl.Name())
		loggers = append(loggers, fl)
	}

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		reg := metrics.NewRegistry()
		m = metrics.New()
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		srv := startMetricsServer(cfg.Metrics.Listen, reg, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	browser := discovery.NewBrowser(discovery.BrowserConfig{
		Service: cfg.Discovery.Service,
		Domain:  cfg.Discovery.Domain,
	})

	address := cfg.Device.Address
	if address == "" || opts.Discover {
		address = resolveAddress(ctx, browser, address, cfg.Discovery.Timeout, logger)
	}

	cl := client.New(clientConfig(cfg, logger, log.NewMultiLogger(loggers...), m))
	defer cl.Close()

	// The surface needs the dispatcher and the instances need the surface
	// as renderer; the pointer closes the loop.
	var instances atomic.Pointer[action.Instances]
	dispatch := func(ev action.Event) error {
		if in := instances.Load(); in != nil {
			return in.Dispatch(ev)
		}
		return nil
	}

	var renderer action.Renderer = action.LogRenderer{Logger: logger}
	if cfg.Surface.Enabled() {
		lp, err := openSurface(cfg.Surface, dispatch, logger)
		if err != nil {
			return err
		}
		defer gomidi.CloseDriver()
		defer lp.Close()
		renderer = lp
	}

	acts := action.NewInstances(cl, renderer, logger)
	defer acts.Close()
	instances.Store(acts)

	for _, b := range cfg.Surface.Bindings {
		if err := acts.Dispatch(action.WillAppear{Context: b.Context, Settings: b.Settings}); err != nil {
			logger.Warn("binding not loaded", "context", b.Context, "error", err)
		}
	}

	if err := cl.Connect(address, cfg.Device.Token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info("connecting", "address", address)

	if console != nil {
		console.client = cl
		console.actions = acts
		console.browser = browser
		console.discoveryTimeout = cfg.Discovery.Timeout
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for running := true; running; {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload(cl, level, logger)
				continue
			}
			logger.Info("received signal", "signal", sig.String())
			running = false
		case <-ctx.Done():
			running = false
		}
	}

	logger.Info("shutting down", "status", cl.Status().State.String())
	return nil
}

// reload re-reads the configuration file and applies credentials and log
// level. Other settings need a restart.
func reload(cl *client.Client, level *slog.LevelVar, logger *slog.Logger) {
	if opts.ConfigFile == "" {
		logger.Info("SIGHUP ignored: no configuration file")
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Error("reload failed", "error", err)
		return
	}

	if lvl, err := cfg.Logging.SlogLevel(); err == nil {
		level.Set(lvl)
	}

	address := cfg.Device.Address
	if address == "" {
		address = cl.Status().Address
	}
	if err := cl.UpdateCredentials(address, cfg.Device.Token); err != nil {
		logger.Error("credential update failed", "error", err)
		return
	}
	logger.Info("configuration reloaded", "address", address)
}

type deviceFinder interface {
	FindFirst(ctx context.Context) (*discovery.DeviceService, error)
}

// resolveAddress looks the device up via mDNS. On failure the configured
// address is kept, even when empty; the client retries it like any other
// transport error.
func resolveAddress(ctx context.Context, finder deviceFinder, configured string, timeout time.Duration, logger *slog.Logger) string {
	logger.Info("discovering device", "timeout", timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	svc, err := finder.FindFirst(ctx)
	if err != nil {
		logger.Warn("device discovery failed", "error", err, "address", configured)
		return configured
	}
	logger.Info("device discovered", "instance", svc.Instance, "address", svc.Address())
	return svc.Address()
}

func openSurface(sc config.SurfaceConfig, dispatch surface.DispatchFunc, logger *slog.Logger) (*surface.Launchpad, error) {
	in, out, err := surface.FindPorts(sc.MIDIIn, sc.MIDIOut)
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}

	lp, err := surface.Open(in, out, surfaceBindings(sc), dispatch, logger.With("component", "surface"))
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	logger.Info("surface opened", "in", in.String(), "bindings", len(sc.Bindings))
	return lp, nil
}

func startMetricsServer(addr string, reg prometheus.Gatherer, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics endpoint", "addr", addr)
	return srv
}
