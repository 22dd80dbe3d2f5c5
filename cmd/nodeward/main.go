// nodeward - supervisor for a single long-running child process
//
// nodeward launches a script under an interpreter (optionally through su),
// hands it a one-time password over stdin, advertises a keepalive socket,
// and stops it gracefully on request or on shutdown. Lifecycle events are
// logged, stored in SQLite, and optionally published over MQTT, written to
// InfluxDB and streamed to WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/nodeward/internal/api"
	"github.com/nerrad567/nodeward/internal/eventlog"
	"github.com/nerrad567/nodeward/internal/infrastructure/config"
	"github.com/nerrad567/nodeward/internal/infrastructure/database"
	"github.com/nerrad567/nodeward/internal/infrastructure/influxdb"
	"github.com/nerrad567/nodeward/internal/infrastructure/logging"
	"github.com/nerrad567/nodeward/internal/infrastructure/mqtt"
	"github.com/nerrad567/nodeward/internal/keepalive"
	"github.com/nerrad567/nodeward/internal/notify"
	"github.com/nerrad567/nodeward/internal/process"
	"github.com/nerrad567/nodeward/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// shutdownGrace is added to the stop timeouts before the supervisor context
// is cancelled during shutdown.
const shutdownGrace = 2 * time.Second

// errProcessFailed is returned when the supervised process ended in error
// without nodeward asking it to stop.
var errProcessFailed = errors.New("supervised process failed")

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("nodeward", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: $NODEWARD_CONFIG or "+config.DefaultPath+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// It returns when ctx is cancelled and the process has been stopped, or when
// the process exits on its own.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "nodeward %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()

	configPath := config.ResolvePath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting nodeward",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS, migrations.Dir); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	events := eventlog.NewSQLiteRepository(db.DB)

	sinks := notify.NewFanout(log,
		notify.NewLogSink(log),
		notify.NewEventLogSink(events, log),
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks.Add(notify.NewMQTTSink(mqttClient, log))
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks.Add(notify.NewMetricsSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		sinks.Add(hub)
	}

	// Create the supervisor
	listener := keepalive.New()
	defer func() {
		if closeErr := listener.Close(); closeErr != nil {
			log.Debug("closing keepalive listener", "error", closeErr)
		}
	}()

	sup, err := process.NewSupervisor(supervisorConfig(cfg.Supervisor, listener), sinks)
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	sup.SetLogger(log)
	log.Info("supervisor ready",
		"instance", sup.Instance(),
		"keepalive", sup.KeepaliveName(),
		"elevation", sup.Elevation(),
	)

	if mqttClient != nil {
		if subErr := handleControl(mqttClient, sup, log); subErr != nil {
			return fmt.Errorf("subscribing to control topics: %w", subErr)
		}
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Supervisor: sup,
			EventLog:   events,
			Database:   db,
			Hub:        hub,
			Version:    version,
		}
		// Leave interfaces nil rather than holding a nil pointer.
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}

		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// The supervisor outlives ctx so a shutdown signal can stop the process
	// gracefully before it is killed.
	supCtx, supCancel := context.WithCancel(context.Background())
	defer supCancel()

	if startErr := sup.Start(supCtx); startErr != nil {
		return fmt.Errorf("starting supervisor: %w", startErr)
	}

	select {
	case <-sup.Done():
		return exitResult(sup.Stats(), log)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, stopping process")
	shutdown(sup, supCancel, cfg.Supervisor, log)

	log.Info("nodeward stopped")
	return nil
}

// supervisorConfig maps the supervisor config section onto process.Config.
func supervisorConfig(c config.SupervisorConfig, listener *keepalive.Listener) process.Config {
	return process.Config{
		Spec: process.Spec{
			Dir:    c.Dir,
			Exec:   c.Exec,
			Script: c.Script,
			Args:   c.Args,
			AsRoot: c.AsRoot,
			Env:    c.Env,
		},
		Instance:            c.Instance,
		ElevationCandidates: c.ElevationCandidates,
		ForceKillTimeout:    c.ForceKillTimeout,
		WaitDelay:           c.WaitDelay,
		SecretLength:        c.SecretLength,
		MaxOutputBytes:      c.MaxOutputBytes,
		Keepalive:           listener,
	}
}

// connectMQTT connects to the broker and wires connection logging.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// stopper is the part of the supervisor driven by remote control.
type stopper interface {
	Instance() string
	StopProcess() error
}

// controller is the part of the MQTT client used for remote control.
type controller interface {
	HandleControl(instance string, handler mqtt.ControlHandler) error
}

// handleControl routes nodeward/control/{instance}/{action} to the supervisor.
func handleControl(client controller, sup stopper, log *logging.Logger) error {
	log.Info("listening for control actions", "topic", mqtt.Topics{}.ControlFilter(sup.Instance()))
	return client.HandleControl(sup.Instance(), controlHandler(sup, log))
}

func controlHandler(sup stopper, log *logging.Logger) mqtt.ControlHandler {
	return func(action string, _ []byte) error {
		if action != mqtt.ActionStop {
			return fmt.Errorf("unknown control action %q", action)
		}
		err := sup.StopProcess()
		if errors.Is(err, process.ErrNotRunning) {
			log.Debug("stop requested while not running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("stopping process: %w", err)
		}
		log.Info("stop requested via MQTT")
		return nil
	}
}

// lifecycle is the part of the supervisor shutdown drives.
type lifecycle interface {
	StopProcess() error
	Done() <-chan struct{}
}

// shutdown stops the process and waits for it. If it has not terminated
// after the force-kill timeout plus the output drain delay, the supervisor
// context is cancelled, which kills the process group.
func shutdown(sup lifecycle, cancel context.CancelFunc, c config.SupervisorConfig, log *logging.Logger) {
	if err := sup.StopProcess(); err != nil && !errors.Is(err, process.ErrNotRunning) {
		log.Warn("stop request failed", "error", err)
	}

	limit := c.ForceKillTimeout + c.WaitDelay + shutdownGrace
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-sup.Done():
		return
	case <-timer.C:
	}

	log.Warn("process did not stop in time, cancelling", "waited", limit)
	cancel()
	<-sup.Done()
}

// exitResult turns an unrequested termination into the command's result.
// A forced kill only happens after a stop request, so it is not a failure.
func exitResult(stats process.Stats, log *logging.Logger) error {
	if stats.ForcedKill {
		log.Info("process killed after stop request")
		return nil
	}
	if stats.LastError == "" && (stats.ExitCode == nil || *stats.ExitCode == 0) {
		log.Info("process exited cleanly")
		return nil
	}
	code := -1
	if stats.ExitCode != nil {
		code = *stats.ExitCode
	}
	return fmt.Errorf("%w: exit code %d: %s", errProcessFailed, code, stats.LastError)
}
