// Package bootstrap turns a loaded Config into wired components. Both the
// gateway and the CLI go through it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bryanwahyu/cu-orchestrator/internal/application"
	appanalyzers "github.com/bryanwahyu/cu-orchestrator/internal/application/analyzers"
	"github.com/bryanwahyu/cu-orchestrator/internal/config"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/journal"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/cu"
	mysqlp "github.com/bryanwahyu/cu-orchestrator/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/cu-orchestrator/internal/infra/db/postgres"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/storage"
)

// Tokens picks the credential source. A subscription key needs no provider.
func Tokens(ctx context.Context, cfg *config.Config) (operation.TokenProvider, error) {
	if cfg.ContentUnderstanding.SubscriptionKey != "" || !cfg.HasClientCredentials() {
		return nil, nil
	}
	c := cfg.ContentUnderstanding
	return cu.NewClientCredentialsProvider(ctx, c.TenantID, c.ClientID, c.ClientSecret)
}

// ContentClient builds the service client from the contentUnderstanding section.
func ContentClient(ctx context.Context, cfg *config.Config, log *slog.Logger) (*cu.Client, error) {
	tokens, err := Tokens(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := cfg.ContentUnderstanding
	return cu.New(cu.Config{
		Endpoint:          c.Endpoint,
		APIVersion:        c.APIVersion,
		SubscriptionKey:   c.SubscriptionKey,
		Tokens:            tokens,
		UserAgent:         c.UserAgent,
		HTTPClient:        &http.Client{Timeout: 2 * time.Minute},
		Logger:            log,
		Clock:             application.SystemClock{},
		Policy:            cu.NewPolicy(c.PollPolicy, c.PollInterval, c.MaxPollInterval),
		Timeout:           c.Timeout,
		LongTimeout:       c.LongTimeout,
		RequestsPerSecond: c.RequestsPerSecond,
	})
}

func Store(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	m := cfg.Minio
	return storage.New(ctx, storage.Options{
		Endpoint:     m.Endpoint,
		Region:       m.Region,
		Bucket:       m.BucketName,
		AccessKey:    m.AccessKey,
		SecretKey:    m.SecretKey,
		UseSSL:       m.UseSSL,
		ContainerURL: m.ContainerURL,
	})
}

// Journal opens the configured database. Driver "none" yields (nil, nil, nil).
func Journal(ctx context.Context, cfg *config.Config) (journal.Repository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "none":
		return nil, nil, nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgresp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		return postgresp.NewJournalRepository(db), db, nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("mysql migrate: %w", err)
			}
		}
		return mysqlp.NewJournalRepository(db), db, nil
	}
}

// Service wires the analyzer workflows. repo may be nil.
func Service(cfg *config.Config, client *cu.Client, store *storage.Store, repo journal.Repository, log *slog.Logger) *appanalyzers.Service {
	svc := &appanalyzers.Service{
		Client:            client,
		Clock:             application.SystemClock{},
		Log:               log,
		CleanupOnFailure:  cfg.ContentUnderstanding.CleanupOnFailure,
		SASExpiry:         cfg.Staging.SASExpiry,
		ReferenceAnalyzer: cfg.ContentUnderstanding.ReferenceAnalyzer,
		Concurrency:       cfg.Staging.Concurrency,
	}
	if store != nil {
		svc.Store = store
	}
	if repo != nil {
		svc.Journal = repo
	}
	return svc
}
