package app

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/fanreel/internal/auth"
	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/catalog"
	"github.com/MarcoPoloResearchLab/fanreel/internal/config"
	"github.com/MarcoPoloResearchLab/fanreel/internal/database"
	"github.com/MarcoPoloResearchLab/fanreel/internal/media"
	"github.com/MarcoPoloResearchLab/fanreel/internal/query"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Open builds a session from client configuration and starts it.
func Open(ctx context.Context, cfg config.ClientConfig, logger *zap.Logger) (*App, *remote.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	identity, err := auth.SubjectFromToken(cfg.APIToken)
	if err != nil {
		return nil, nil, err
	}
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Logger:  logger.Named("remote"),
	})
	if err != nil {
		return nil, nil, err
	}
	prober, err := media.NewProber(cfg.MediaProbe, cfg.FFProbePath)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	session, err := New(Config{
		Collaborator: client,
		Events:       client,
		Store:        store,
		Prober:       prober,
		Session:      catalog.Session{Identity: identity},
		Query: query.Config{
			StaleAfter: cfg.StaleAfter,
			RetryCount: retryCount(cfg.RetryCount),
			RetryDelay: cfg.RetryDelay,
		},
		Logger: logger,
	})
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	session.addCloser(closeStore)

	if err := session.Start(ctx); err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	logger.Debug("session started",
		zap.String("identity", identity),
		zap.String("role", string(session.Role())),
		zap.String("binding_backend", cfg.BindingBackend))
	return session, client, nil
}

// The cache reads zero as "use the default"; an explicit zero here means no retries.
func retryCount(configured int) int {
	if configured <= 0 {
		return -1
	}
	return configured
}

func openStore(cfg config.ClientConfig, logger *zap.Logger) (binding.Store, func() error, error) {
	switch cfg.BindingBackend {
	case config.BindingBackendMemory:
		return binding.NewMemoryStore(), func() error { return nil }, nil
	case config.BindingBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err := binding.NewRedisStore(client, cfg.RedisNamespace)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	case config.BindingBackendSQLite:
		db, err := database.OpenLocal(cfg.BindingPath, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store, err := binding.NewSQLiteStore(db, nil)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, sqlDB.Close, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown binding backend %q", cfg.BindingBackend)
	}
}
