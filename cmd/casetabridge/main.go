// Caseta Bridge exposes Lutron Caseta devices as HomeKit accessories.
//
// The bridge talks to each hub through a LEAP relay reached over MQTT,
// reconciles the hub's device list into persisted accessories and serves them
// over HAP. Button gestures, occupancy changes and pass summaries are
// published to MQTT, InfluxDB and WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/caseta-bridge/migrations"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
	"github.com/nerrad567/caseta-bridge/internal/api"
	"github.com/nerrad567/caseta-bridge/internal/broker"
	"github.com/nerrad567/caseta-bridge/internal/discovery"
	"github.com/nerrad567/caseta-bridge/internal/drivers"
	"github.com/nerrad567/caseta-bridge/internal/events"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/config"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/database"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/caseta-bridge/internal/leap"
	"github.com/nerrad567/caseta-bridge/internal/leap/relay"
	"github.com/nerrad567/caseta-bridge/internal/occupancy"
	"github.com/nerrad567/caseta-bridge/internal/platform"
	"github.com/nerrad567/caseta-bridge/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "CASETABRIDGE_CONFIG"

	// eventBufferSize bounds the event bus queue.
	eventBufferSize = 1024
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Caseta Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "hubs", len(cfg.Hubs))

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	store := accessory.NewStore(accessory.NewSQLiteRepository(db.DB))
	store.SetLogger(log.Component("accessory"))
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading accessories: %w", err)
	}

	topics := mqtt.Topics{Prefix: cfg.Relay.TopicPrefix}
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	}

	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	var relayManager *process.Manager
	if cfg.Relay.Managed {
		relayManager = process.NewManager(process.RelayConfig(cfg.Relay))
		relayManager.SetLogger(log.Component("relay"))
		if err := relayManager.Start(ctx); err != nil {
			return fmt.Errorf("starting LEAP relay: %w", err)
		}
		defer func() {
			if stopErr := relayManager.Stop(); stopErr != nil {
				log.Error("error stopping LEAP relay", "error", stopErr)
			}
		}()
	}

	wsHub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	bus := events.NewBus(events.Options{BufferSize: eventBufferSize, Logger: log.Component("events")})
	bus.AddSink("mqtt", events.NewMQTTSink(mqttClient, topics))
	bus.AddSink("websocket", wsHub)
	if influxClient != nil {
		bus.AddSink("influxdb", events.NewInfluxSink(influxClient))
	}
	if err := bus.Start(); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}
	defer bus.Stop()

	framework := homekit.NewFramework(store, log.Component("homekit"))
	hapServer, err := homekit.NewServer(homekit.ServerOptions{
		BridgeName:   cfg.Bridge.Name,
		BridgeID:     cfg.Bridge.ID,
		Version:      version,
		StoragePath:  cfg.HomeKit.StoragePath,
		Pin:          cfg.HomeKit.Pin,
		Address:      cfg.HomeKit.Address,
		RestartDelay: cfg.HomeKit.RestartDelay,
		Framework:    framework,
		Logger:       log.Component("hap"),
	})
	if err != nil {
		return fmt.Errorf("creating HAP server: %w", err)
	}

	router := occupancy.NewRouter(log.Component("occupancy"))
	defer router.Close()

	catalog, err := drivers.NewCatalog(drivers.Options{
		FilterPico:       cfg.Options.FilterPico,
		FilterBlinds:     cfg.Options.FilterBlinds,
		ClickSpeedLong:   cfg.Options.ClickSpeedLong,
		ClickSpeedDouble: cfg.Options.ClickSpeedDouble,
		UpDownExtraDwell: cfg.Options.UpDownExtraDwell,
		Router:           router,
		Publisher:        bus,
		Logger:           log.Component("drivers"),
	})
	if err != nil {
		return fmt.Errorf("creating driver catalog: %w", err)
	}

	sessions := broker.New[leap.Session](broker.Options{
		Timeout: cfg.Options.HandleTimeout,
		Logger:  log.Component("broker"),
	})
	defer closeSessions(sessions, log)

	connector, err := relay.NewConnector(relay.Options{
		Transport:      mqttClient,
		Topics:         topics,
		RequestTimeout: cfg.Relay.RequestTimeout,
		Logger:         log.Component("leap"),
	})
	if err != nil {
		return fmt.Errorf("creating relay connector: %w", err)
	}

	engine, err := platform.New(platform.Options{
		Broker:           sessions,
		Framework:        framework,
		Wirer:            catalog,
		Connector:        connector,
		Credentials:      credentialSource(cfg),
		DeviceHeardDelay: cfg.Options.DeviceHeardDelay,
		Publisher:        bus,
		Logger:           log.Component("platform"),
	})
	if err != nil {
		return fmt.Errorf("creating reconciliation engine: %w", err)
	}
	defer engine.Close()

	deps := api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log.Component("api"),
		Engine:        engine,
		Accessories:   store,
		Checks:        checks,
		EventsDropped: bus.Dropped,
		Hub:           wsHub,
		Version:       version,
	}
	if relayManager != nil {
		deps.RelayStats = relayManager.Stats
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	shells := framework.Restore()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hapServer.Run(gctx)
	})
	g.Go(func() error {
		engine.Restore(gctx, shells)
		return nil
	})
	g.Go(func() error {
		watchDiscovery(gctx, cfg, mqttClient, topics, engine, log)
		return nil
	})

	log.Info("initialisation complete",
		"accessories", store.Count(),
		"api", apiServer.Addr(),
	)

	err = g.Wait()
	log.Info("shutting down")
	if err != nil {
		return err
	}
	log.Info("Caseta Bridge stopped")
	return nil
}

// healthCheck runs every check in name order and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthCheck) error {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// watchDiscovery hands every hub announcement to the engine until ctx ends.
func watchDiscovery(ctx context.Context, cfg *config.Config, client *mqtt.Client, topics mqtt.Topics, engine *platform.Engine, log *logging.Logger) {
	dlog := log.Component("discovery")
	announcers := []discovery.Announcer{
		discovery.Static(cfg.Hubs),
		discovery.Relay{Subscriber: client, Topics: topics},
	}
	if cfg.Discovery.Enabled {
		announcers = append(announcers, discovery.NewMDNS(cfg.Discovery, dlog))
	}

	var g errgroup.Group
	for ann := range discovery.Merge(ctx, dlog, announcers...) {
		g.Go(func() error {
			if err := engine.HandleDiscovery(ctx, ann); err != nil {
				dlog.Warn("hub setup failed", "hub_id", ann.HubID, "address", ann.Address, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // handlers log their own failures
}

// credentialSource reads the paired credentials for a hub from the files
// named in the hub's configuration.
func credentialSource(cfg *config.Config) platform.CredentialSource {
	return func(hubID string) (leap.Credentials, error) {
		hub, ok := cfg.Hub(hubID)
		if !ok {
			return leap.Credentials{}, fmt.Errorf("%w: no credentials configured for hub %s", leap.ErrInvalidCredentials, hubID)
		}
		secrets, err := hub.ReadSecrets()
		if err != nil {
			return leap.Credentials{}, err
		}
		return leap.Credentials{CA: secrets.CA, Key: secrets.Key, Cert: secrets.Cert}, nil
	}
}

func closeSessions(sessions *broker.Broker[leap.Session], log *logging.Logger) {
	for _, id := range sessions.Hubs() {
		s, ok := sessions.Lookup(id)
		if !ok {
			continue
		}
		if err := s.Close(); err != nil {
			log.Warn("error closing hub session", "hub_id", id, "error", err)
		}
	}
}

// getConfigPath returns CASETABRIDGE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
