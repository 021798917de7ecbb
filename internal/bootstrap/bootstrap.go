// Package bootstrap builds the long-lived handles shared by the api and worker services
// from their configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/config"
	"github.com/cuongbtq/translation-dispatch/internal/retry"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/cuongbtq/translation-dispatch/shared/logger"
	"github.com/cuongbtq/translation-dispatch/shared/postgresql"
	"github.com/cuongbtq/translation-dispatch/shared/rabbitmq"
)

// NewLogger initializes and configures the application logger
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// OpenDatabase connects to the configured driver and applies pending migrations.
// Both drivers come back as a postgresql.Client; for SQLite it only wraps the pool.
func OpenDatabase(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	var (
		client  *postgresql.Client
		dialect storage.Dialect
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		client = postgresql.NewClientFromDB(db, log)
		dialect = storage.DialectSQLite
		log.Info("Using SQLite database", slog.String("path", cfg.SQLitePath))
	case config.DriverPostgres:
		var err error
		client, err = postgresql.NewClient(ctx, PostgresConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		dialect = storage.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	if err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := storage.Migrate(ctx, client.GetDB(), dialect, log); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return client, nil
}

// PostgresConfig maps the database section onto the PostgreSQL client config
func PostgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectRetries:  cfg.ConnectRetries,
		ConnectInterval: cfg.ConnectInterval,
	}
}

// RabbitMQConfig maps the rabbitmq section onto the RabbitMQ client config
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		MessageTTL:         cfg.MessageTTL,
		RetryQueuePrefix:   cfg.RetryQueuePrefix,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// ConnectRabbitMQ initializes the RabbitMQ client and declares the work topology
func ConnectRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(ctx, RabbitMQConfig(cfg), log)
}

// RetryPolicy builds the worker retry policy from the retry section
func RetryPolicy(cfg *config.RetryConfig) (retry.Policy, error) {
	strategy, err := retry.NewStrategy(cfg.Strategy, cfg.InitialDelay, cfg.MaxDelay, cfg.Multiplier)
	if err != nil {
		return retry.Policy{}, fmt.Errorf("invalid worker retry config: %w", err)
	}
	return retry.NewPolicy(strategy), nil
}
