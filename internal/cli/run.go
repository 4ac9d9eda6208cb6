package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/humidistat/internal/config"
	"github.com/joshp123/humidistat/internal/control"
	"github.com/joshp123/humidistat/internal/core"
	"github.com/joshp123/humidistat/internal/logging"
	"github.com/joshp123/humidistat/internal/publish"
	"github.com/joshp123/humidistat/internal/server"
	"github.com/joshp123/humidistat/plugins/govee"
)

const shutdownTimeout = 5 * time.Second

// Options are the resolved file locations and log level for one run.
type Options struct {
	ConfigPath string
	APIKeyPath string
	LogPath    string
	LogLevel   string
}

// Run starts the service and blocks until ctx is cancelled. Startup
// failures are logged and returned.
func Run(ctx context.Context, opts Options) error {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}

	logger, closer, err := logging.Open(opts.LogPath, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; logging to stderr\n", err)
		logger, closer = logging.Stderr(level), nopCloser{}
	}
	defer closer.Close()

	return run(ctx, opts, logger)
}

func run(ctx context.Context, opts Options, logger *slog.Logger) error {
	apiKey, err := config.LoadAPIKey(opts.APIKeyPath)
	if err != nil {
		logger.Error("Failed to load API key", "path", opts.APIKeyPath, "error", err)
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if errors.Is(err, config.ErrNotFound) {
		logger.Error("Device config file not found: " + opts.ConfigPath)
		logger.Error("Please copy devices.config.template to devices.config and fill in your device information")
		return err
	}
	if err != nil {
		logger.Error("Failed to load device config", "path", opts.ConfigPath, "error", err)
		return err
	}

	logger.Info("Starting humidity control service...")
	logger.Info("Monitoring humidity sensor", "sku", cfg.Sensor.SKU, "device", cfg.Sensor.Device)
	logger.Info("Controlling device", "sku", cfg.Actuator.SKU, "device", cfg.Actuator.Device)

	plugin := govee.NewPlugin(cfg, apiKey)
	plugins := []core.Plugin{plugin}
	if err := core.ValidatePlugins(plugins); err != nil {
		logger.Error("Invalid plugin set", "error", err)
		return err
	}
	client := plugin.Client()
	if client == nil {
		err := fmt.Errorf("govee client: %s", plugin.HealthMessage())
		logger.Error("Failed to create API client", "error", err)
		return err
	}

	metrics := control.NewMetrics()
	registry := core.MetricsRegistry(plugins, append(metrics.Collectors(), buildInfo())...)
	observers := []control.Observer{metrics}

	var httpServer *server.HTTPServer
	if addr := cfg.Service.HTTPAddr; addr != "" {
		httpServer = server.NewHTTPServer(addr, server.NewMux(plugins, registry))
		go func() {
			if err := httpServer.ListenAndServe(); err != nil {
				logger.Error("http serve", "addr", addr, "error", err)
			}
		}()
		logger.Info("status server listening", "addr", addr)
	}

	var grpcServer *server.GRPCServer
	if addr := cfg.Service.GRPCAddr; addr != "" {
		grpcServer, err = server.NewGRPCServer(addr)
		if err != nil {
			logger.Error("grpc listen", "addr", addr, "error", err)
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error("grpc serve", "addr", addr, "error", err)
			}
		}()
		observers = append(observers, control.ObserverFunc(func(context.Context, control.Cycle) {
			status, _ := core.Overall(plugins)
			grpcServer.SetHealth(status)
		}))
		logger.Info("grpc health listening", "addr", addr)
	}

	if cfg.MQTT.Enabled() {
		if publisher := dialPublisher(cfg.MQTT, logger); publisher != nil {
			defer publisher.Close()
			observers = append(observers, publisher)
		}
	}

	controller := control.New(
		govee.NewSensor(client, cfg.Sensor),
		govee.NewSwitch(client, cfg.Actuator),
		control.Options{
			Interval:  cfg.Service.CheckInterval,
			Logger:    logger,
			Observers: observers,
		},
	)
	runErr := controller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	return runErr
}

// dialPublisher connects the MQTT publisher. Failures are logged and the
// service runs without it.
func dialPublisher(cfg config.MQTT, logger *slog.Logger) *publish.Publisher {
	password := ""
	if cfg.PasswordFile != "" {
		secret, err := config.ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			logger.Warn("mqtt disabled: read password file", "path", cfg.PasswordFile, "error", err)
			return nil
		}
		password = secret
	}
	transport, err := publish.Dial(cfg, password)
	if err != nil {
		logger.Warn("mqtt disabled", "broker", cfg.Broker, "error", err)
		return nil
	}
	logger.Info("publishing cycle state", "broker", cfg.Broker, "topic", cfg.Topic)
	return publish.NewPublisher(transport, cfg.Topic, logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func buildInfo() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "humidistat_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": Version},
	}, func() float64 { return 1 })
}
