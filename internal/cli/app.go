package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dghubble/oauth1"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"video_reposter/internal/config"
	"video_reposter/internal/domain"
	"video_reposter/internal/events"
	"video_reposter/internal/ledger"
	"video_reposter/internal/media"
	"video_reposter/internal/passlock"
	"video_reposter/internal/pipeline"
	"video_reposter/internal/publisher"
	"video_reposter/internal/publisher/twitter"
	"video_reposter/internal/retry"
	"video_reposter/internal/router"
	"video_reposter/internal/source/reddit"
	"video_reposter/internal/source/telegram"
	"video_reposter/internal/storage/jsonl"
	"video_reposter/internal/storage/postgres"
)

const cursorFile = "router_cursor.json"

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// loadConfig reads and validates the config file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// stores holds the durable state backends selected by the config.
type stores struct {
	ledger  ledger.Store
	cursors router.CursorStore
	// totals is only available on the postgres backend.
	totals *postgres.LedgerStore
	db     *sqlx.DB
}

func openStores(cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

		ledgerStore := postgres.NewLedgerStore(db, postgres.NewTransactionManager(db))
		return &stores{
			ledger:  ledgerStore,
			cursors: postgres.NewCursorStore(db),
			totals:  ledgerStore,
			db:      db,
		}, nil
	default:
		return &stores{
			ledger:  jsonl.NewLedgerStore(cfg.Ledger.Path),
			cursors: jsonl.NewCursorStore(filepath.Join(filepath.Dir(cfg.Ledger.Path), cursorFile)),
		}, nil
	}
}

func (s *stores) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// app is a fully wired pipeline plus everything that must be closed after it.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	st, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	policy := retryPolicy(cfg.Retry)

	sinks := events.Multi{events.NewLogger(logger)}
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := events.NewRabbitMQ(events.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rabbitMQ.Close)
		sinks = append(sinks, rabbitMQ)
	}

	var lock pipeline.Locker
	switch cfg.Lock.Backend {
	case config.LockRedis:
		client := passlock.NewRedisClient(cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.RedisDB)
		a.closers = append(a.closers, client.Close)
		lock = passlock.NewRedis(client, cfg.Pipeline.Name, cfg.Lock.TTL, logger)
	case config.LockFile:
		lock = passlock.NewFile(cfg.Lock.Path)
	default:
		lock = passlock.NewLocal()
	}

	mediaClient := &http.Client{Timeout: cfg.Media.Timeout}
	fetcher := media.NewFetcher(mediaClient, media.DefaultRegistry(mediaClient), media.Options{
		MaxBytes: cfg.Media.MaxBytes,
	}, logger)

	pub := publisher.NewService(publisher.Config{
		Pause: cfg.PublishPause,
		Retry: policy,
	}, logger)
	for _, dest := range cfg.DestinationAccounts() {
		pub.Register(dest.ID, twitter.New(signedClient(ctx, dest, cfg), twitter.Config{}, logger.With("destination", dest.ID)))
	}

	sources := []pipeline.Source{
		reddit.New(reddit.Config{
			BaseURL:           cfg.Reddit.BaseURL,
			UserAgent:         cfg.Reddit.UserAgent,
			Listing:           cfg.Reddit.Listing,
			Timeout:           cfg.Reddit.Timeout,
			RequestsPerMinute: cfg.Reddit.RequestsPerMinute,
			Retry:             policy,
		}, logger),
		telegram.New(telegram.Config{
			BaseURL: cfg.Telegram.BaseURL,
			Timeout: cfg.Telegram.Timeout,
			Retry:   policy,
		}, logger),
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		Sources:   sources,
		Fetcher:   fetcher,
		Ledger:    ledger.New(st.ledger, logger),
		Router:    router.New(cfg.Pipeline.Name, st.cursors, logger),
		Publisher: pub,
		Events:    sinks,
		Lock:      lock,
		Logger:    logger,
	}, pipelineConfig(cfg, policy))

	return a, nil
}

func pipelineConfig(cfg *config.Config, policy retry.Policy) pipeline.Config {
	specs := make([]pipeline.SourceSpec, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		specs = append(specs, pipeline.SourceSpec{Kind: s.Kind, ID: s.ID, Limit: s.Limit})
	}
	return pipeline.Config{
		Sources:            specs,
		Destinations:       cfg.DestinationAccounts(),
		DownloadDir:        cfg.DownloadDir,
		IncludeTextContent: cfg.IncludeTextContent,
		AppendSourceLink:   cfg.AppendSourceLink,
		Workers:            cfg.Media.Workers,
		Retry:              policy,
	}
}

// signedClient returns an http.Client that signs every request with the
// account's OAuth1 user context.
func signedClient(ctx context.Context, dest domain.DestinationAccount, cfg *config.Config) *http.Client {
	oauthConfig := oauth1.NewConfig(dest.Credentials.ConsumerKey, dest.Credentials.ConsumerSecret)
	token := oauth1.NewToken(dest.Credentials.AccessToken, dest.Credentials.AccessTokenSecret)
	client := oauthConfig.Client(ctx, token)
	client.Timeout = cfg.Media.Timeout
	return client
}
