package repository

import (
	"context"
	"fmt"

	"github.com/dafibh/envelope/envelope-backend/internal/config"
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/repository/firestore"
	"github.com/dafibh/envelope/envelope-backend/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// OpenStore connects the configured document store. The returned func releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (domain.DocumentStore, func(), error) {
	switch cfg.DocumentStore {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("project_id", cfg.Firestore.ProjectID).Msg("Connected to Firestore")
		return firestore.NewDocumentStore(client), func() { client.Close() }, nil

	case config.StorePostgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		log.Info().Msg("Connected to database")
		return postgres.NewDocumentStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported document store %q", cfg.DocumentStore)
}
