package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/genflow/internal/api"
	"github.com/phrazzld/genflow/internal/api/middleware"
	"github.com/phrazzld/genflow/internal/artifact"
	"github.com/phrazzld/genflow/internal/backend"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/dispatch"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/events"
	"github.com/phrazzld/genflow/internal/notify"
	"github.com/phrazzld/genflow/internal/platform/amqp"
	"github.com/phrazzld/genflow/internal/platform/elevenlabs"
	"github.com/phrazzld/genflow/internal/platform/filestore"
	"github.com/phrazzld/genflow/internal/platform/gcs"
	"github.com/phrazzld/genflow/internal/platform/gemini"
	"github.com/phrazzld/genflow/internal/platform/memory"
	"github.com/phrazzld/genflow/internal/platform/openai"
	"github.com/phrazzld/genflow/internal/platform/postgres"
	redisstore "github.com/phrazzld/genflow/internal/platform/redis"
	"github.com/phrazzld/genflow/internal/platform/replicate"
	"github.com/phrazzld/genflow/internal/platform/s3"
	"github.com/phrazzld/genflow/internal/platform/sns"
	"github.com/phrazzld/genflow/internal/proxy"
	"github.com/phrazzld/genflow/internal/redact"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/phrazzld/genflow/internal/worker"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	taskStore store.TaskStore
	jobStore  store.JobStore

	// Task processing
	runners    *backend.Registry
	dispatcher *dispatch.Dispatcher
	runner     *worker.Runner
	emitter    *events.InMemoryEventEmitter

	// Prediction proxy, nil without a Replicate token
	predictions *proxy.Service
	pollRunner  *worker.Runner

	// Every runner the server starts and stops
	workers []*worker.Runner

	// Artifacts are served from here when the fs driver is used
	files *filestore.Store

	closers []func() error
}

// newApplication creates a new application instance with all dependencies initialized.
// db may be nil, in which case tasks are kept in memory.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.setupStores()

	objects, err := app.setupObjectStore(ctx)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize artifact storage: %w", err)
	}
	persister := artifact.NewPersister(objects, logger)

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize pub/sub publisher: %w", err)
	}
	webhook := notify.NewWebhookSender(nil, notify.WebhookConfig{
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		Timeout:        cfg.Webhook.Timeout,
		InitialBackoff: cfg.Webhook.InitialBackoff,
	}, logger)
	notifier := notify.NewNotifier(publisher, webhook, logger)

	replicateClient, err := app.setupBackends(ctx)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}

	app.runner = worker.NewRunner(worker.Config{
		WorkerCount:        cfg.Worker.Count,
		QueueSize:          cfg.Worker.QueueSize,
		StaleAge:           cfg.Worker.StaleAge,
		StaleCheckInterval: cfg.Worker.StaleCheckInterval,
	}, logger)
	logJobError := func(job worker.Job, err error) {
		logger.Error("background job failed",
			"job_id", job.ID(),
			"job_kind", job.Kind(),
			"error", redact.Error(err))
	}
	app.runner.SetErrorHandler(logJobError)
	app.workers = append(app.workers, app.runner)

	// Dispatch runs on the raw store; only API writes go through the emitter.
	app.dispatcher = dispatch.NewDispatcher(app.taskStore, app.runners, persister, notifier, logger)
	async := events.NewAsyncHandler(app.dispatcher, app.runner, logger)
	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(async)

	app.runner.SetRecoverFunc(func(ctx context.Context) error {
		return app.dispatcher.Redeliver(ctx, async, 0)
	})
	app.runner.SetStaleFunc(app.dispatcher.Sweep(async, cfg.Worker.RedeliverAge))

	if replicateClient != nil {
		poller := proxy.NewPoller(replicateClient, app.jobStore, persister, proxy.PollerConfig{
			Interval:       cfg.Poller.Interval,
			Timeout:        cfg.Poller.Timeout,
			PersistTimeout: cfg.Poller.PersistTimeout,
		}, logger)
		app.pollRunner = worker.NewRunner(worker.Config{
			WorkerCount: cfg.Poller.Workers,
			QueueSize:   cfg.Poller.QueueSize,
		}, logger)
		app.pollRunner.SetErrorHandler(logJobError)
		app.workers = append(app.workers, app.pollRunner)
		app.predictions = proxy.NewService(replicateClient, app.jobStore, poller, app.pollRunner,
			cfg.Backends.Replicate.ImageVersion, logger)
	}

	logger.Info("Application initialized successfully",
		"task_types", app.runners.Types(),
		"storage_driver", cfg.Storage.Driver,
		"pubsub_driver", cfg.PubSub.Driver)
	return app, nil
}

// setupStores picks Postgres or memory for tasks and Redis or memory for
// job records.
func (app *application) setupStores() {
	if app.db != nil {
		app.taskStore = postgres.NewTaskStore(app.db, app.logger)
	} else {
		app.logger.Warn("no database configured, tasks are kept in memory")
		app.taskStore = memory.NewTaskStore()
	}

	rc := app.config.Redis
	if rc.Addr == "" {
		app.jobStore = memory.NewJobStore()
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	app.closers = append(app.closers, client.Close)
	app.jobStore = redisstore.NewJobStore(client, rc.JobTTL, app.logger)
}

func (app *application) setupObjectStore(ctx context.Context) (artifact.ObjectStore, error) {
	sc := app.config.Storage
	switch sc.Driver {
	case "s3":
		st, err := s3.New(ctx, s3.Config{Bucket: sc.Bucket, Region: sc.Region})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "gcs":
		st, err := gcs.New(ctx, sc.Bucket)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, st.Close)
		return st, nil
	case "fs", "":
		st, err := filestore.New(sc.Dir, sc.BaseURL)
		if err != nil {
			return nil, err
		}
		app.files = st
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

func (app *application) setupPublisher(ctx context.Context) (notify.Publisher, error) {
	pc := app.config.PubSub
	switch pc.Driver {
	case "amqp":
		p, err := amqp.Dial(pc.AMQPURL, pc.Exchange, app.logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, p.Close)
		return p, nil
	case "sns":
		p, err := sns.New(ctx, pc.TopicARN, pc.Region, app.logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "none", "":
		return notify.NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown pub/sub driver %q", pc.Driver)
	}
}

// setupBackends registers a runner for every backend that has credentials.
// It returns the Replicate client when one is configured.
func (app *application) setupBackends(ctx context.Context) (*replicate.Client, error) {
	bc := app.config.Backends
	app.runners = backend.NewRegistry()

	var client *replicate.Client
	if bc.Replicate.APIToken != "" {
		var err error
		client, err = replicate.NewClient(bc.Replicate.BaseURL, bc.Replicate.APIToken, nil)
		if err != nil {
			return nil, err
		}
		runnerCfg := replicate.RunnerConfig{
			PollInterval: app.config.Poller.Interval,
			Timeout:      app.config.Poller.Timeout,
		}

		imageCfg := runnerCfg
		imageCfg.Version = bc.Replicate.ImageVersion
		if err := app.runners.Register(domain.TaskTypeImageGen, replicate.NewImageRunner(client, imageCfg, app.logger)); err != nil {
			return nil, err
		}

		if bc.Replicate.VideoVersion != "" {
			videoCfg := runnerCfg
			videoCfg.Version = bc.Replicate.VideoVersion
			if err := app.runners.Register(domain.TaskTypeVideoGen, replicate.NewVideoRunner(client, videoCfg, app.logger)); err != nil {
				return nil, err
			}
		}
	}

	if bc.Gemini.APIKey != "" {
		text, err := gemini.NewTextRunner(ctx, gemini.Config{APIKey: bc.Gemini.APIKey, Model: bc.Gemini.Model}, app.logger)
		if err != nil {
			return nil, err
		}
		if err := app.runners.Register(domain.TaskTypeTextGen, text); err != nil {
			return nil, err
		}
	}

	if bc.OpenAI.APIKey != "" {
		chat, err := openai.NewChatRunner(openai.Config{
			APIKey:  bc.OpenAI.APIKey,
			BaseURL: bc.OpenAI.BaseURL,
			Model:   bc.OpenAI.Model,
		}, nil, app.logger)
		if err != nil {
			return nil, err
		}
		if err := app.runners.Register(domain.TaskTypeChat, chat); err != nil {
			return nil, err
		}
	}

	if bc.ElevenLabs.APIKey != "" {
		speech, err := elevenlabs.NewSpeechRunner(elevenlabs.Config{
			APIKey:  bc.ElevenLabs.APIKey,
			BaseURL: bc.ElevenLabs.BaseURL,
			VoiceID: bc.ElevenLabs.VoiceID,
			ModelID: bc.ElevenLabs.ModelID,
		}, nil, app.logger)
		if err != nil {
			return nil, err
		}
		if err := app.runners.Register(domain.TaskTypeSpeechGen, speech); err != nil {
			return nil, err
		}
	}

	if len(app.runners.Types()) == 0 {
		app.logger.Warn("no backend credentials configured, tasks will stay in starting")
	}
	return client, nil
}

// handler builds the HTTP handler for the application.
func (app *application) handler() http.Handler {
	// API writes emit change events; the dispatcher reacts to inserts.
	observed := events.NewObservedTaskStore(app.taskStore, app.emitter, app.logger)

	routes := api.RouterConfig{
		Tasks:   api.NewTaskHandler(observed, app.logger),
		Webhook: api.NewWebhookHandler(app.logger),
		Logger:  app.logger,
	}
	if app.predictions != nil {
		routes.Proxy = api.NewProxyHandler(app.predictions, app.logger)
	}
	if secret := app.config.Auth.JWTSecret; secret != "" {
		routes.Auth = middleware.NewAuthMiddleware(secret)
	}

	r := api.NewRouter(routes)
	if app.files != nil {
		if mount := artifactMountPath(app.config.Storage.BaseURL); mount != "" {
			r.Handle(mount+"/*", http.StripPrefix(mount, app.files))
		}
	}
	return r
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}

	if app.db != nil {
		errs = append(errs, app.db.Close())
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error("Error releasing resources", "error", err)
	}
	app.logger.Info("Application shutdown completed")
}

// shutdownTimeout bounds graceful shutdown of the HTTP server.
func (app *application) shutdownTimeout() time.Duration {
	if t := app.config.Server.ShutdownTimeout; t > 0 {
		return t
	}
	return 10 * time.Second
}
