package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mcare/mcare/internal/config"
	"github.com/mcare/mcare/internal/domain/clinic"
	"github.com/mcare/mcare/internal/domain/identity"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/logging"
	"github.com/mcare/mcare/internal/platform/messaging"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/platform/resilience"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mcare-server",
		Short:        "Maternal and child health records API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads and validates config, builds the logger and opens the
// pool. The returned cleanup closes both.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, nil, err
	}

	logger, logCloser := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	})

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, logger, nil, nil, err
	}
	logger.Info().Msg("connected to database")

	cleanup := func() {
		pool.Close()
		_ = logCloser.Close()
	}
	return cfg, logger, pool, cleanup, nil
}

func newEngine(cfg *config.Config) *validation.Engine {
	var opts []validation.Option
	if cfg.PhoneRegion != "" {
		opts = append(opts, validation.WithPhoneRegion(cfg.PhoneRegion))
	}
	return validation.NewEngine(opts...)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, pool, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			count, err := db.NewMigrator(pool, migrations.FS, ".").Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, pool, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			statuses, err := db.NewMigrator(pool, migrations.FS, ".").Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish outbox events to RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, logger, pool, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.RabbitMQURL == "" {
				return fmt.Errorf("RABBITMQ_URL is required for the relay")
			}
			publisher, err := messaging.Dial(cfg.RabbitMQURL, cfg.EventsQueue,
				resilience.NewCircuitBreaker(resilience.BreakerRabbitMQ, logger))
			if err != nil {
				return err
			}
			defer publisher.Close()

			listener := outbox.NewPGListener(pool)
			defer listener.Close()

			relay := outbox.NewRelay(
				outbox.NewPGStore(pool, outbox.DefaultMaxAttempts),
				publisher,
				listener,
				resilience.NewCircuitBreaker(resilience.BreakerOutboxDB, logger),
				outbox.RelayConfig{PollInterval: cfg.OutboxPollInterval, BatchSize: cfg.OutboxBatchSize},
				logger,
			)
			return relay.Run(ctx)
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("MCARE_ADMIN_PASSWORD")
			}

			ctx := cmd.Context()
			cfg, logger, pool, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			svc := identity.NewService(identity.Deps{
				Users:         identity.NewUserRepoPG(pool),
				HealthWorkers: identity.NewHealthWorkerRepoPG(pool),
				Clinics:       clinic.NewRepoPG(pool),
				Tx:            db.NewTxManager(pool),
				Engine:        newEngine(cfg),
				Events:        outbox.NewWriter(pool),
				Logger:        logger,
			})
			u, err := svc.CreateAdmin(ctx, validation.Payload{
				"full_name": name,
				"email":     email,
				"password":  password,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (id %d).\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("name", "Administrator", "Full name")
	createAdmin.Flags().String("email", "", "Login email")
	createAdmin.Flags().String("password", "", "Password (defaults to $MCARE_ADMIN_PASSWORD)")
	_ = createAdmin.MarkFlagRequired("email")

	cmd.AddCommand(createAdmin)
	return cmd
}

// revocationStore picks redis when configured. The returned pinger is nil
// for the in-memory store.
func revocationStore(cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, db.Pinger, func(), error) {
	if cfg.RedisURL == "" {
		mem := auth.NewMemoryRevocationStore(time.Minute)
		logger.Warn().Msg("REDIS_URL not set, token revocation is local to this process")
		return mem, nil, mem.Close, nil
	}
	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	store := auth.NewRedisRevocationStore(rdb, resilience.NewCircuitBreaker(resilience.BreakerRedis, logger))
	return store, redisPinger{rdb}, func() { _ = rdb.Close() }, nil
}
