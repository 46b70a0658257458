package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/bryanwahyu/cu-orchestrator/internal/application"
	appanalyzers "github.com/bryanwahyu/cu-orchestrator/internal/application/analyzers"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/cu"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/storage"
	"github.com/bryanwahyu/cu-orchestrator/internal/logger"
)

// Factories are variables so tests can swap in fakes.
var (
	newStore  = storeFromViper
	newClient = clientFromViper
)

func cliLogger() *slog.Logger {
	return logger.NewWith(os.Stderr, viper.GetString("log-level"), "text")
}

func storeFromViper(ctx context.Context) (domain.ObjectStore, error) {
	if viper.GetString("storage-endpoint") == "" {
		return nil, fmt.Errorf("storage endpoint not set (--storage-endpoint or CU_STORAGE_ENDPOINT)")
	}
	return storage.New(ctx, storage.Options{
		Endpoint:     viper.GetString("storage-endpoint"),
		Region:       viper.GetString("storage-region"),
		Bucket:       viper.GetString("storage-bucket"),
		AccessKey:    viper.GetString("storage-access-key"),
		SecretKey:    viper.GetString("storage-secret-key"),
		UseSSL:       viper.GetBool("storage-ssl"),
		ContainerURL: viper.GetString("container-url"),
	})
}

func clientFromViper(ctx context.Context, log *slog.Logger) (*cu.Client, error) {
	var tokens operation.TokenProvider
	if viper.GetString("subscription-key") == "" && viper.GetString("client-id") != "" {
		tp, err := cu.NewClientCredentialsProvider(ctx,
			viper.GetString("tenant-id"), viper.GetString("client-id"), viper.GetString("client-secret"))
		if err != nil {
			return nil, err
		}
		tokens = tp
	}
	interval := viper.GetDuration("poll-interval")
	timeout := viper.GetDuration("timeout")
	return cu.New(cu.Config{
		Endpoint:        viper.GetString("endpoint"),
		APIVersion:      viper.GetString("api-version"),
		SubscriptionKey: viper.GetString("subscription-key"),
		Tokens:          tokens,
		Logger:          log,
		Clock:           application.SystemClock{},
		Policy:          cu.NewPolicy(viper.GetString("poll-policy"), interval, 30*time.Second),
		Timeout:         timeout,
		LongTimeout:     timeout,
	})
}

// newService builds the workflow service; the store is only opened when needStore is set.
func newService(ctx context.Context, needStore bool) (*appanalyzers.Service, error) {
	log := cliLogger()
	client, err := newClient(ctx, log)
	if err != nil {
		return nil, err
	}
	svc := &appanalyzers.Service{Client: client, Log: log, Clock: application.SystemClock{}}
	if needStore {
		store, err := newStore(ctx)
		if err != nil {
			return nil, err
		}
		svc.Store = store
	}
	return svc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func readTemplate(path string) (*cu.Object, error) {
	if path == "" {
		return nil, nil
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return cu.ParseObject(data)
}
