package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
	"github.com/casaviva/decora-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "decora", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.DesignProject{},
		&types.DetectedItem{},
		&types.Product{},
		&types.ChatMessage{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	if err := s.db.Exec(`
		ALTER TABLE "user_token"
		DROP CONSTRAINT IF EXISTS "fk_user_token_user_id";
	`).Error; err != nil {
		return fmt.Errorf("failed to reset fk_user_token_user_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "user_token"
		ADD CONSTRAINT "fk_user_token_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_user_token_user_id: %w", err)
	}

	// Lexical search over the product catalog: a maintained tsvector column
	// plus a GIN index, queried with ts_rank in ProductRepo.SearchText.
	s.log.Info("Configuring product full-text search column...")
	if err := s.db.Exec(`
		ALTER TABLE "product"
		ADD COLUMN IF NOT EXISTS "search_vector" tsvector
		GENERATED ALWAYS AS (to_tsvector('portuguese', coalesce(search_text, ''))) STORED;
	`).Error; err != nil {
		return fmt.Errorf("failed to add product search_vector column: %w", err)
	}
	if err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS "idx_product_search_vector"
		ON "product" USING GIN ("search_vector");
	`).Error; err != nil {
		return fmt.Errorf("failed to create product search_vector index: %w", err)
	}

	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
