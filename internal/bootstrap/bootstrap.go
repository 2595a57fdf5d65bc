// Package bootstrap builds infrastructure from config. Shared by cmd/api and cmd/auditctl.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/automaton-a11y/internal/config"
	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/billing"
	"github.com/bryanwahyu/automaton-a11y/internal/domain/scanerrors"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/browser"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/db/migrations"
	mysqlp "github.com/bryanwahyu/automaton-a11y/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/storage"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/trial"
)

// AccountStore is billing.Accounts plus the operator-only credit grant.
type AccountStore interface {
	billing.Accounts
	Grant(ctx context.Context, userID, email string, amount int, description string) (billing.Receipt, error)
}

// Stores groups the repositories of one database.
type Stores struct {
	DB       *sql.DB
	Driver   string
	Audits   domain.Repository
	Accounts AccountStore
	Failures scanerrors.Repository
}

// OpenStores connects to the configured database and builds its repositories.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Database.Driver {
	case migrations.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return &Stores{
			DB:       db,
			Driver:   migrations.DriverPostgres,
			Audits:   postgres.NewAuditRepository(db),
			Accounts: postgres.NewAccountRepository(db),
			Failures: postgres.NewScanErrorRepository(db),
		}, nil
	case migrations.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		return &Stores{
			DB:       db,
			Driver:   migrations.DriverMySQL,
			Audits:   mysqlp.NewAuditRepository(db),
			Accounts: mysqlp.NewAccountRepository(db),
			Failures: mysqlp.NewScanErrorRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// Scanner builds the headless browser scanner.
func Scanner(cfg *config.Config) (*browser.Scanner, error) {
	return browser.NewScanner(browser.Options{
		BrowserURL:        cfg.Scanner.BrowserURL,
		ExecPath:          cfg.Scanner.ExecPath,
		AxeScriptPath:     cfg.Scanner.AxeScriptPath,
		AxeScriptURL:      cfg.Scanner.AxeScriptURL,
		Timeout:           cfg.Scanner.Timeout,
		NavigationTimeout: cfg.Scanner.NavigationTimeout,
	})
}

// Summarizer returns nil when no provider key is configured.
func Summarizer(cfg *config.Config) domain.Summarizer {
	if cfg.AI.OpenAIKey == "" && cfg.AI.OpenRouterKey == "" {
		return nil
	}
	return openai.NewClient(openai.Config{
		Model:             cfg.AI.Model,
		OpenAIKey:         cfg.AI.OpenAIKey,
		OpenAIBaseURL:     cfg.AI.OpenAIBaseURL,
		OpenRouterKey:     cfg.AI.OpenRouterKey,
		OpenRouterBaseURL: cfg.AI.OpenRouterBaseURL,
	})
}

// Artifacts returns nil when MinIO is not configured.
func Artifacts(ctx context.Context, cfg *config.Config) (domain.ArtifactStore, error) {
	if cfg.Minio.Endpoint == "" {
		return nil, nil
	}
	store, err := storage.New(ctx, storage.Options{
		Endpoint:      cfg.Minio.Endpoint,
		Region:        cfg.Minio.Region,
		Bucket:        cfg.Minio.BucketName,
		AccessKey:     cfg.Minio.AccessKey,
		SecretKey:     cfg.Minio.SecretKey,
		UseSSL:        cfg.Minio.UseSSL,
		PublicBaseURL: cfg.Minio.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Trials uses Redis when configured, otherwise an in-process counter.
// The returned client is nil for the in-memory limiter.
func Trials(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.TrialLimiter, *redis.Client) {
	tc := trial.Config{Limit: cfg.Trial.Limit, Window: cfg.Trial.Window}
	if cfg.Redis.Addr == "" {
		log.Warn("redis not configured, trial usage is kept in memory")
		mem := trial.NewMemoryLimiter(tc)
		go mem.RunCleanup(ctx, 10*time.Minute)
		return mem, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return trial.NewRedisLimiter(client, tc), client
}
