package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/models"
)

// Connect establishes a connection to the database and migrates the schema
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.URL)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver != "postgres" {
		if err := configureSQLite(db, cfg.Path); err != nil {
			return nil, err
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// configureSQLite applies the single-writer setup the store relies on.
func configureSQLite(db *gorm.DB, path string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if !strings.Contains(path, "mode=memory") && path != ":memory:" {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}
	if err := db.Exec("PRAGMA foreign_keys=ON;").Error; err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

// Migrate creates or updates the tables for every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Plan{}, &models.FamilyMember{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// ConnectRedis establishes a connection to Redis
func ConnectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		client.Close()
		return nil, err
	}

	log.Info().Str("addr", opt.Addr).Msg("connected to redis")
	return client, nil
}
