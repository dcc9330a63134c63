package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"fleettrack/internal/api/handler"
	"fleettrack/internal/cache"
	"fleettrack/internal/config"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/core/service"
	"fleettrack/internal/events"
	"fleettrack/internal/session"
)

type repositories struct {
	devices   repository.DeviceRepository
	vehicles  repository.VehicleRepository
	positions repository.PositionRepository
	trips     repository.TripRepository
	geofences repository.GeofenceRepository
	alerts    repository.AlertRepository
	commands  repository.CommandRepository
}

type application struct {
	registry  *session.Registry
	devices   service.DeviceService
	positions service.PositionService
	trips     service.TripService
	alerts    service.AlertService
	geofences service.GeofenceService
	commands  service.CommandService
	presence  handler.PresenceChecker

	closers []func()
}

// close releases resources in reverse order of acquisition.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, logger *log.Entry) (*application, error) {
	app := &application{}

	repos, err := buildRepositories(ctx, cfg, app, logger)
	if err != nil {
		app.close()
		return nil, err
	}

	var redisClient *redis.Client
	if !cfg.TestMode {
		redisClient, err = config.NewRedisClient(cfg)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-memory cache, presence and queues")
			redisClient = nil
		}
		if redisClient != nil {
			app.closers = append(app.closers, func() { redisClient.Close() })
		}
	}

	publisher, err := buildPublisher(cfg, redisClient, app, logger)
	if err != nil {
		app.close()
		return nil, err
	}

	var (
		presence   session.Presence
		membership service.MembershipStore = service.NewMemoryMembershipStore()
		queue      service.PendingQueue    = service.NewMemoryQueue()
	)
	if redisClient != nil {
		redisPresence := cache.NewPresence(redisClient, cfg.IdleTimeout+time.Minute)
		presence, app.presence = redisPresence, redisPresence
		membership = cache.NewMembershipStore(redisClient)
		queue = cache.NewCommandQueue(redisClient)
	}

	app.registry = session.NewRegistry(presence, logger)
	app.devices = service.NewDeviceService(repos.devices, repos.vehicles, cache.New(redisClient), cfg.DeviceCacheTTL, logger)
	app.geofences = service.NewGeofenceService(repos.geofences, membership, logger)
	app.trips = service.NewTripService(repos.trips, repos.positions, publisher, cfg.MovementThresholdKmh, logger)
	app.alerts = service.NewAlertService(repos.alerts, repos.vehicles, app.geofences, publisher, cfg.OfflineAfter, logger)
	app.positions = service.NewPositionService(repos.positions, repos.vehicles, app.devices, app.trips, app.alerts,
		app.geofences, publisher, service.PipelineOptions{
			DefaultSpeedLimitKmh: cfg.DefaultSpeedLimitKmh,
			GeofenceMode:         cfg.GeofenceAlertMode,
		}, logger)
	app.commands = service.NewCommandService(repos.commands, repos.devices, app.registry, queue, publisher, logger)
	return app, nil
}

func buildRepositories(ctx context.Context, cfg *config.Config, app *application, logger *log.Entry) (*repositories, error) {
	if cfg.TestMode {
		logger.Info("test mode: using in-memory repositories")
		return &repositories{
			devices:   repository.NewInMemoryDeviceRepository(),
			vehicles:  repository.NewInMemoryVehicleRepository(),
			positions: repository.NewInMemoryPositionRepository(),
			trips:     repository.NewInMemoryTripRepository(),
			geofences: repository.NewInMemoryGeofenceRepository(),
			alerts:    repository.NewInMemoryAlertRepository(),
			commands:  repository.NewInMemoryCommandRepository(),
		}, nil
	}

	db, err := config.ConnectMongoDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db.Client().Disconnect(ctx)
	})
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		logger.WithError(err).Warn("could not create MongoDB indexes")
	}

	repos := &repositories{
		devices:   repository.NewMongoDeviceRepository(db),
		vehicles:  repository.NewMongoVehicleRepository(db),
		positions: repository.NewMongoPositionRepository(db),
		trips:     repository.NewMongoTripRepository(db),
		geofences: repository.NewMongoGeofenceRepository(db),
		alerts:    repository.NewMongoAlertRepository(db),
		commands:  repository.NewMongoCommandRepository(db),
	}

	if cfg.PositionStore == "postgres" {
		pg, err := config.NewPostgres(cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { pg.Close() })
		positions := repository.NewPostgresPositionRepository(pg)
		if err := positions.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate positions table: %w", err)
		}
		repos.positions = positions
		logger.Info("positions stored in PostgreSQL")
	}
	return repos, nil
}

// buildPublisher selects the event bus and wraps it so publishing never
// blocks ingestion.
func buildPublisher(cfg *config.Config, redisClient *redis.Client, app *application, logger *log.Entry) (events.Publisher, error) {
	var inner events.Publisher
	switch cfg.EventBus {
	case "", "none":
		return events.Nop{}, nil
	case "rabbitmq":
		conn, err := config.NewRabbitMQ(cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { conn.Close() })
		rabbit, err := events.NewRabbitPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { rabbit.Close() })
		inner = rabbit
	case "mqtt":
		client, err := config.NewMQTT(cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { client.Disconnect(250) })
		inner = events.NewMQTTPublisher(client)
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("EVENT_BUS=redis needs REDIS_URL")
		}
		inner = events.NewRedisPublisher(redisClient)
	default:
		return nil, fmt.Errorf("unknown EVENT_BUS %q", cfg.EventBus)
	}

	async := events.NewAsyncPublisher(inner, cfg.EventBuffer, cfg.EventWorkers, logger)
	app.closers = append(app.closers, async.Close)
	logger.WithField("bus", cfg.EventBus).Info("event publishing enabled")
	return async, nil
}
