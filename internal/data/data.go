// Package data bundles the process-wide infrastructure clients:
// Postgres, Redis, and MinIO.
package data

import (
	"context"
	"fmt"

	authdata "github.com/lk2023060901/pentestgpt-backend/internal/auth/data"
	chatmodels "github.com/lk2023060901/pentestgpt-backend/internal/chat/models"
	"github.com/lk2023060901/pentestgpt-backend/internal/conf"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/database"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/minio"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/redis"
)

type Data struct {
	DB          *database.DB
	RedisClient *redis.Client
	MinIOClient *minio.Client
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	dbCfg := database.DefaultConfig()
	dbCfg.Host = config.Database.Host
	dbCfg.Port = config.Database.Port
	dbCfg.User = config.Database.User
	dbCfg.Password = config.Database.Password
	dbCfg.DBName = config.Database.DBName
	if config.Database.SSLMode != "" {
		dbCfg.SSLMode = config.Database.SSLMode
	}

	db, err := database.New(dbCfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := db.AutoMigrate(
		&authdata.UserPO{},
		&chatmodels.Chat{},
		&chatmodels.Message{},
	); err != nil {
		return nil, nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	redisClient, err := redis.New(&redis.Config{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}

	minioClient, err := minio.NewClient(context.Background(), &minio.Config{
		Endpoint:        config.MinIO.Endpoint,
		AccessKeyID:     config.MinIO.AccessKey,
		SecretAccessKey: config.MinIO.SecretKey,
		UseSSL:          config.MinIO.UseSSL,
		Bucket:          config.MinIO.Bucket,
	}, log.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init minio: %w", err)
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		MinIOClient: minioClient,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")
		if err := d.DB.Close(); err != nil {
			log.Warn("failed to close database")
		}
		if err := d.RedisClient.Close(); err != nil {
			log.Warn("failed to close redis")
		}
	}

	return d, cleanup, nil
}
